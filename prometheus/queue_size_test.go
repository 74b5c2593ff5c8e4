package prometheus

import (
	"context"
	"testing"
	"time"

	"inviqa/notification-relay/notification"
	"inviqa/notification-relay/notification/test"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSizes(t *testing.T) {
	repo := test.NewMockRepository()
	for _, s := range []notification.Status{
		notification.StatusQueued,
		notification.StatusQueued,
		notification.StatusProcessing,
		notification.StatusSent,
		notification.StatusFailed,
	} {
		repo.AddMessage(&notification.Message{Id: uuid.New(), Status: s})
	}

	ctx, cancel := context.WithCancel(context.Background())
	go ObserveSizes(repo, ctx)
	time.Sleep(time.Millisecond * 100)
	cancel()

	if actual := testutil.ToFloat64(queueSize); actual != 3.00 {
		t.Errorf("expected queueSize to be 3.000000, but got %f", actual)
	}

	if actual := testutil.ToFloat64(totalSize); actual != 5.00 {
		t.Errorf("expected totalSize to be 5.000000, but got %f", actual)
	}

	if actual := testutil.ToFloat64(deadLetterSize); actual != 1.00 {
		t.Errorf("expected deadLetterSize to be 1.000000, but got %f", actual)
	}
}

func TestObserveQueueSize_WithRepositoryError(t *testing.T) {
	queueSize.Set(0.0)
	repo := test.NewMockRepository()
	repo.AddMessage(&notification.Message{Id: uuid.New(), Status: notification.StatusQueued})
	repo.ReturnErrors()

	ctx, cancel := context.WithCancel(context.Background())
	go ObserveQueueSize(repo, ctx)
	time.Sleep(time.Millisecond * 100)
	cancel()

	if actual := testutil.ToFloat64(queueSize); actual != 0.00 {
		t.Errorf("expected queueSize to be 0.000000, but got %f", actual)
	}
}
