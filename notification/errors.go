package notification

import "github.com/pkg/errors"

// Validation faults, rejected synchronously at enqueue.
var (
	ErrInvalidChannel        = errors.New("invalid channel")
	ErrInvalidRecipientType  = errors.New("invalid recipient type")
	ErrInvalidRecipientToken = errors.New("invalid recipient token")
	ErrInvalidPriority       = errors.New("invalid priority")
	ErrMissingBody           = errors.New("message body is required")
	ErrMissingSubject        = errors.New("subject is required for email messages")
	ErrInvalidSubject        = errors.New("subject must be a single line")
	ErrEmptyBatch            = errors.New("batch has no recipients")
	ErrBatchTooLarge         = errors.Errorf("batch exceeds the maximum of %d recipients", MaxBatchSize)
)

var (
	ErrRecipientNotFound  = errors.New("recipient not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrBatchNotFound      = errors.New("batch not found")
	ErrUnsupportedChannel = errors.New("unsupported channel")
	ErrNotDeadLettered    = errors.New("message is not in the dead-letter state")
	ErrUnknownEventType   = errors.New("unknown webhook event type")

	// ErrNoMessages signals an idle queue to the poller.
	ErrNoMessages = errors.New("no messages ready for dispatch")

	// ErrClaimLost is returned when an outcome write finds the message no
	// longer held by the claim that dispatched it.
	ErrClaimLost = errors.New("message claim is no longer held")

	// ErrIdempotencyConflict is returned by an insert that lost a race on the
	// vendor's idempotency key.
	ErrIdempotencyConflict = errors.New("idempotency key already used")
)

// IsValidationError reports whether err is one of the synchronous enqueue
// validation faults.
func IsValidationError(err error) bool {
	for _, v := range []error{
		ErrInvalidChannel, ErrInvalidRecipientType, ErrInvalidRecipientToken, ErrInvalidPriority,
		ErrMissingBody, ErrMissingSubject, ErrInvalidSubject, ErrEmptyBatch, ErrBatchTooLarge,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
