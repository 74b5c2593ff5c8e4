package provider

import (
	"context"
	"sync"

	"inviqa/notification-relay/notification"

	"github.com/google/uuid"
)

// Input is everything a provider needs to deliver one message. Subject is
// only used by email providers.
type Input struct {
	MessageId      uuid.UUID
	VendorId       string
	Channel        notification.Channel
	RecipientToken string
	RecipientType  notification.RecipientType
	Subject        string
	Body           string
}

func InputFor(m *notification.Message) Input {
	return Input{
		MessageId:      m.Id,
		VendorId:       m.VendorId,
		Channel:        m.Channel,
		RecipientToken: m.RecipientToken,
		RecipientType:  m.RecipientType,
		Subject:        m.Subject,
		Body:           m.Body,
	}
}

// Outcome is the provider's answer to a send. A returned error means the
// provider could not be reached at all.
type Outcome struct {
	Success      bool
	ProviderId   string
	ProviderName string
	Error        string
	Retryable    bool
}

type Sender interface {
	Send(ctx context.Context, in Input) (Outcome, error)
	Name() string
}

// AddressResolver turns a recipient token into the email address or phone
// number a real provider delivers to.
type AddressResolver interface {
	Resolve(ctx context.Context, token string, channel notification.Channel) (string, error)
}

// Registry maps each channel to the sender that serves it.
type Registry struct {
	mu      sync.RWMutex
	senders map[notification.Channel]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: map[notification.Channel]Sender{}}
}

func (r *Registry) Register(ch notification.Channel, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[ch] = s
}

func (r *Registry) Lookup(ch notification.Channel) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[ch]

	return s, ok
}
