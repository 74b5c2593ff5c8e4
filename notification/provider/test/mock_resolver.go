package test

import (
	"context"

	"inviqa/notification-relay/notification"
)

type MockResolver struct {
	addresses map[string]string
}

func NewMockResolver(addresses map[string]string) *MockResolver {
	return &MockResolver{addresses: addresses}
}

func (r *MockResolver) Resolve(_ context.Context, token string, _ notification.Channel) (string, error) {
	addr, ok := r.addresses[token]
	if !ok {
		return "", notification.ErrRecipientNotFound
	}

	return addr, nil
}

func (r *MockResolver) Exists(_ context.Context, token string) (bool, error) {
	_, ok := r.addresses[token]
	return ok, nil
}
