package sql

func claimOrder(priorityOrdering bool) string {
	if priorityOrdering {
		return "CASE priority WHEN 'HIGH' THEN 0 WHEN 'NORMAL' THEN 1 ELSE 2 END, created_at ASC"
	}

	return "created_at ASC"
}
