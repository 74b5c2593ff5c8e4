package notification

import (
	"database/sql"
	"testing"
	"time"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	allowed := map[Status][]Status{
		StatusQueued:     {StatusProcessing},
		StatusScheduled:  {StatusProcessing},
		StatusProcessing: {StatusSent, StatusQueued, StatusFailed},
		StatusSent:       {StatusDelivered, StatusBounced, StatusFailed},
		StatusFailed:     {StatusQueued},
	}
	all := []Status{StatusQueued, StatusScheduled, StatusProcessing, StatusSent, StatusDelivered, StatusBounced, StatusFailed}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}

			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusDelivered: true,
		StatusBounced:   true,
		StatusFailed:    true,
	}

	for _, s := range []Status{StatusQueued, StatusScheduled, StatusProcessing, StatusSent, StatusDelivered, StatusBounced, StatusFailed} {
		if got := s.IsTerminal(); got != terminal[s] {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, terminal[s])
		}
	}
}

func TestStatus_IsValid(t *testing.T) {
	if Status("archived").IsValid() {
		t.Error("expected an unknown status to be invalid")
	}

	if !StatusBounced.IsValid() {
		t.Error("expected bounced to be valid")
	}
}

func TestEnums_IsValid(t *testing.T) {
	if !ChannelEmail.IsValid() || !ChannelSMS.IsValid() || Channel("PUSH").IsValid() {
		t.Error("channel validation is not as expected")
	}

	if !RecipientTeacher.IsValid() || RecipientType("").IsValid() {
		t.Error("recipient type validation is not as expected")
	}

	if !PriorityLow.IsValid() || Priority("URGENT").IsValid() {
		t.Error("priority validation is not as expected")
	}

	if !BatchProcessing.IsValid() || BatchStatus("sent").IsValid() {
		t.Error("batch status validation is not as expected")
	}
}

func TestInitialStatus(t *testing.T) {
	now := time.Date(2021, 6, 14, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		scheduledAt sql.NullTime
		want        Status
	}{
		{"not scheduled", sql.NullTime{}, StatusQueued},
		{"scheduled in the past", sql.NullTime{Time: now.Add(-time.Minute), Valid: true}, StatusQueued},
		{"scheduled now", sql.NullTime{Time: now, Valid: true}, StatusQueued},
		{"scheduled in the future", sql.NullTime{Time: now.Add(time.Minute), Valid: true}, StatusScheduled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InitialStatus(tt.scheduledAt, now); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	if BatchStatusFor(StatusScheduled) != BatchScheduled || BatchStatusFor(StatusQueued) != BatchQueued {
		t.Error("batch status mapping is not as expected")
	}
}

func TestBatch_Derivations(t *testing.T) {
	tests := []struct {
		name        string
		batch       Batch
		settled     bool
		rate        float64
		closeStatus BatchStatus
	}{
		{"nothing sent yet", Batch{TotalRecipients: 3}, false, 0, BatchCompleted},
		{"partially settled", Batch{TotalRecipients: 3, SentCount: 1, FailedCount: 1}, false, 0, BatchCompleted},
		{"settled with deliveries", Batch{TotalRecipients: 4, SentCount: 2, DeliveredCount: 1, FailedCount: 2}, true, 0.5, BatchCompleted},
		{"all failed", Batch{TotalRecipients: 2, FailedCount: 2}, true, 0, BatchFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.batch.Settled(); got != tt.settled {
				t.Errorf("Settled() = %v, want %v", got, tt.settled)
			}
			if got := tt.batch.DeliveryRate(); got != tt.rate {
				t.Errorf("DeliveryRate() = %v, want %v", got, tt.rate)
			}
			if got := tt.batch.ClosingStatus(); got != tt.closeStatus {
				t.Errorf("ClosingStatus() = %v, want %v", got, tt.closeStatus)
			}
		})
	}
}
