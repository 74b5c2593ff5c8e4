package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"inviqa/notification-relay/log"
	"inviqa/notification-relay/notification"
	"inviqa/notification-relay/notification/batch"
	"inviqa/notification-relay/notification/deadletter"
	"inviqa/notification-relay/notification/enqueue"
	"inviqa/notification-relay/pricing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const maxRequestBody = 8 << 20

type enqueuer interface {
	EnqueueMessage(ctx context.Context, in enqueue.MessageInput) (*enqueue.Receipt, error)
	EnqueueBatch(ctx context.Context, in enqueue.BatchInput) (*enqueue.BatchReceipt, error)
}

type batchSummaries interface {
	Summary(ctx context.Context, id uuid.UUID) (*batch.Summary, error)
}

type deadLetters interface {
	List(ctx context.Context, f deadletter.Filter) ([]deadletter.Entry, error)
	Reprocess(ctx context.Context, id uuid.UUID) (*notification.Message, error)
}

type messageRequest struct {
	VendorId       string     `json:"vendorId"`
	Channel        string     `json:"channel"`
	RecipientToken string     `json:"recipientToken"`
	RecipientType  string     `json:"recipientType"`
	Subject        string     `json:"subject"`
	Body           string     `json:"body"`
	Priority       string     `json:"priority"`
	IdempotencyKey string     `json:"idempotencyKey"`
	ScheduledAt    *time.Time `json:"scheduledAt"`
}

type batchRequest struct {
	VendorId   string `json:"vendorId"`
	Channel    string `json:"channel"`
	Recipients []struct {
		Token string `json:"token"`
		Type  string `json:"type"`
	} `json:"recipients"`
	Subject        string     `json:"subject"`
	Body           string     `json:"body"`
	Priority       string     `json:"priority"`
	IdempotencyKey string     `json:"idempotencyKey"`
	ScheduledAt    *time.Time `json:"scheduledAt"`
}

type messageView struct {
	Id                uuid.UUID  `json:"id"`
	VendorId          string     `json:"vendorId"`
	BatchId           *uuid.UUID `json:"batchId,omitempty"`
	Channel           string     `json:"channel"`
	Status            string     `json:"status"`
	Priority          string     `json:"priority"`
	RetryCount        int        `json:"retryCount"`
	FailureReason     string     `json:"failureReason,omitempty"`
	ProviderMessageId string     `json:"providerMessageId,omitempty"`
	ScheduledAt       *time.Time `json:"scheduledAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
}

type batchView struct {
	Id              uuid.UUID  `json:"id"`
	VendorId        string     `json:"vendorId"`
	Channel         string     `json:"channel"`
	Status          string     `json:"status"`
	TotalRecipients int        `json:"totalRecipients"`
	SentCount       int        `json:"sentCount"`
	DeliveredCount  int        `json:"deliveredCount"`
	FailedCount     int        `json:"failedCount"`
	DeliveryRate    float64    `json:"deliveryRate"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

type apiHandler struct {
	enqueuer    enqueuer
	batches     batchSummaries
	deadLetters deadLetters
}

// NewAPIHandler routes the vendor facing endpoints: enqueueing messages and
// batches, batch progress and the dead-letter queue.
func NewAPIHandler(e enqueuer, b batchSummaries, dl deadLetters) http.Handler {
	h := &apiHandler{enqueuer: e, batches: b, deadLetters: dl}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /messages", h.enqueueMessage)
	mux.HandleFunc("POST /batches", h.enqueueBatch)
	mux.HandleFunc("GET /batches/{id}", h.batchSummary)
	mux.HandleFunc("GET /dead-letters", h.listDeadLetters)
	mux.HandleFunc("POST /dead-letters/{id}/reprocess", h.reprocess)

	return mux
}

func (h *apiHandler) enqueueMessage(w http.ResponseWriter, req *http.Request) {
	var in messageRequest
	if !decode(w, req, &in) {
		return
	}

	r, err := h.enqueuer.EnqueueMessage(req.Context(), enqueue.MessageInput{
		VendorId:       in.VendorId,
		Channel:        notification.Channel(in.Channel),
		RecipientToken: in.RecipientToken,
		RecipientType:  notification.RecipientType(in.RecipientType),
		Subject:        in.Subject,
		Body:           in.Body,
		Priority:       notification.Priority(in.Priority),
		IdempotencyKey: in.IdempotencyKey,
		ScheduledAt:    in.ScheduledAt,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, createdOrOK(r.IsDuplicate), map[string]interface{}{
		"message":       viewOfMessage(r.Message),
		"duplicate":     r.IsDuplicate,
		"estimatedCost": r.EstimatedCost,
	})
}

func (h *apiHandler) enqueueBatch(w http.ResponseWriter, req *http.Request) {
	var in batchRequest
	if !decode(w, req, &in) {
		return
	}

	recipients := make([]enqueue.Recipient, len(in.Recipients))
	for i, r := range in.Recipients {
		recipients[i] = enqueue.Recipient{Token: r.Token, Type: notification.RecipientType(r.Type)}
	}

	r, err := h.enqueuer.EnqueueBatch(req.Context(), enqueue.BatchInput{
		VendorId:       in.VendorId,
		Channel:        notification.Channel(in.Channel),
		Recipients:     recipients,
		Subject:        in.Subject,
		Body:           in.Body,
		Priority:       notification.Priority(in.Priority),
		IdempotencyKey: in.IdempotencyKey,
		ScheduledAt:    in.ScheduledAt,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, createdOrOK(r.IsDuplicate), struct {
		Batch         batchView     `json:"batch"`
		MessageIds    []uuid.UUID   `json:"messageIds,omitempty"`
		Duplicate     bool          `json:"duplicate"`
		EstimatedCost *pricing.Cost `json:"estimatedCost"`
	}{
		Batch:         viewOfBatch(r.Batch),
		MessageIds:    r.MessageIds,
		Duplicate:     r.IsDuplicate,
		EstimatedCost: r.EstimatedCost,
	})
}

func (h *apiHandler) batchSummary(w http.ResponseWriter, req *http.Request) {
	id, ok := pathId(w, req)
	if !ok {
		return
	}

	s, err := h.batches.Summary(req.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}

	v := viewOfBatch(s.Batch)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"batch":   v,
		"settled": s.Settled,
	})
}

func (h *apiHandler) listDeadLetters(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	f := deadletter.Filter{VendorId: q.Get("vendorId")}

	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid limit"))
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid offset"))
		return
	}

	entries, err := h.deadLetters.List(req.Context(), f)
	if err != nil {
		h.fail(w, err)
		return
	}

	type entryView struct {
		Message   messageView `json:"message"`
		Reason    string      `json:"reason"`
		Exhausted bool        `json:"exhausted"`
	}
	out := make([]entryView, len(entries))
	for i, e := range entries {
		out[i] = entryView{Message: viewOfMessage(e.Message), Reason: e.Reason, Exhausted: e.Exhausted}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": out})
}

func (h *apiHandler) reprocess(w http.ResponseWriter, req *http.Request) {
	id, ok := pathId(w, req)
	if !ok {
		return
	}

	m, err := h.deadLetters.Reprocess(req.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"message": viewOfMessage(m)})
}

func (h *apiHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case notification.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, notification.ErrRecipientNotFound):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, notification.ErrMessageNotFound), errors.Is(err, notification.ErrBatchNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, notification.ErrNotDeadLettered):
		writeError(w, http.StatusConflict, err)
	default:
		log.Logger.WithError(err).Error("api request failed")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func decode(w http.ResponseWriter, req *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "malformed request body"))
		return false
	}
	return true
}

func pathId(w http.ResponseWriter, req *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(req.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func createdOrOK(duplicate bool) int {
	if duplicate {
		return http.StatusOK
	}
	return http.StatusCreated
}

func viewOfMessage(m *notification.Message) messageView {
	return messageView{
		Id:                m.Id,
		VendorId:          m.VendorId,
		BatchId:           m.BatchId,
		Channel:           m.Channel.String(),
		Status:            m.Status.String(),
		Priority:          string(m.Priority),
		RetryCount:        m.RetryCount,
		FailureReason:     m.FailureReason.String,
		ProviderMessageId: m.ProviderMessageId.String,
		ScheduledAt:       timePtr(m.ScheduledAt.Time, m.ScheduledAt.Valid),
		CreatedAt:         m.CreatedAt,
		SentAt:            timePtr(m.SentAt.Time, m.SentAt.Valid),
		DeliveredAt:       timePtr(m.DeliveredAt.Time, m.DeliveredAt.Valid),
	}
}

func viewOfBatch(b *notification.Batch) batchView {
	return batchView{
		Id:              b.Id,
		VendorId:        b.VendorId,
		Channel:         b.Channel.String(),
		Status:          b.Status.String(),
		TotalRecipients: b.TotalRecipients,
		SentCount:       b.SentCount,
		DeliveredCount:  b.DeliveredCount,
		FailedCount:     b.FailedCount,
		DeliveryRate:    b.DeliveryRate(),
		CreatedAt:       b.CreatedAt,
		CompletedAt:     timePtr(b.CompletedAt.Time, b.CompletedAt.Valid),
	}
}

func timePtr(t time.Time, valid bool) *time.Time {
	if !valid {
		return nil
	}
	return &t
}
