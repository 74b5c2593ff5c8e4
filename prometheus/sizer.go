package prometheus

import "context"

// Sizer reports how many messages sit in each part of the queue. The gauges
// poll it, so implementations should answer from an indexed count.
type Sizer interface {
	QueueSize(ctx context.Context) (uint, error)
	TotalSize(ctx context.Context) (uint, error)
	DeadLetterSize(ctx context.Context) (uint, error)
}
