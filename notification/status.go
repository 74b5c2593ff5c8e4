package notification

type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

func (c Channel) String() string { return string(c) }

type RecipientType string

const (
	RecipientParent  RecipientType = "PARENT"
	RecipientStudent RecipientType = "STUDENT"
	RecipientTeacher RecipientType = "TEACHER"
)

func (r RecipientType) IsValid() bool {
	switch r {
	case RecipientParent, RecipientStudent, RecipientTeacher:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Status is the lifecycle state of a single message.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusScheduled  Status = "scheduled"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusDelivered  Status = "delivered"
	StatusBounced    Status = "bounced"
	StatusFailed     Status = "failed"
)

var transitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing},
	StatusScheduled:  {StatusProcessing},
	StatusProcessing: {StatusSent, StatusQueued, StatusFailed},
	StatusSent:       {StatusDelivered, StatusBounced, StatusFailed},
	StatusFailed:     {StatusQueued},
	StatusDelivered:  nil,
	StatusBounced:    nil,
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no automatic transition leaves s. A failed
// message only moves again through an operator reprocess.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusBounced:
		return true
	}
	return false
}

// Claimable reports whether a worker may take the message from s.
func (s Status) Claimable() bool {
	return s == StatusQueued || s == StatusScheduled
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

// BatchStatus is the lifecycle state of a batch as a whole.
type BatchStatus string

const (
	BatchQueued     BatchStatus = "queued"
	BatchScheduled  BatchStatus = "scheduled"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchQueued, BatchScheduled, BatchProcessing, BatchCompleted, BatchFailed:
		return true
	}
	return false
}

func (s BatchStatus) IsClosed() bool {
	return s == BatchCompleted || s == BatchFailed
}

func (s BatchStatus) String() string { return string(s) }

// BatchStatusFor maps the initial message status onto its batch counterpart.
func BatchStatusFor(s Status) BatchStatus {
	if s == StatusScheduled {
		return BatchScheduled
	}
	return BatchQueued
}
