package http

import (
	"context"
	"encoding/json"
	"net/http"

	"inviqa/notification-relay/log"
	"inviqa/notification-relay/notification"
	"inviqa/notification-relay/notification/webhook"

	"github.com/pkg/errors"
)

const maxWebhookBody = 64 << 10

type reconciler interface {
	Apply(ctx context.Context, e webhook.Event) (*webhook.Outcome, error)
}

type webhookHandler struct {
	reconciler reconciler
}

// NewWebhookHandler accepts provider delivery reports. Duplicate and late
// reports are acknowledged like applied ones so the provider stops retrying.
func NewWebhookHandler(r reconciler) http.Handler {
	return &webhookHandler{reconciler: r}
}

func (h webhookHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var e webhook.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxWebhookBody)).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "malformed webhook payload"))
		return
	}
	if e.ProviderId == "" {
		writeError(w, http.StatusBadRequest, errors.New("providerId is required"))
		return
	}

	out, err := h.reconciler.Apply(req.Context(), e)
	switch {
	case errors.Is(err, notification.ErrUnknownEventType):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, notification.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		log.Logger.WithError(err).WithField("provider_id", e.ProviderId).Error("unable to apply webhook event")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":      out.Message.Id,
		"status":  out.Message.Status,
		"applied": out.Applied,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Logger.WithError(err).Debug("unable to write response body")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
