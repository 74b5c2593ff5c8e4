package test

import (
	"context"
	"sync"

	"inviqa/notification-relay/notification"
)

type RecordingSink struct {
	sync.Mutex
	events []notification.Event
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Record(_ context.Context, e notification.Event) {
	s.Lock()
	defer s.Unlock()
	s.events = append(s.events, e)
}

func (s *RecordingSink) Events() []notification.Event {
	s.Lock()
	defer s.Unlock()
	return append([]notification.Event{}, s.events...)
}

// Types lists the recorded event types in order.
func (s *RecordingSink) Types() []notification.EventType {
	s.Lock()
	defer s.Unlock()
	types := make([]notification.EventType, len(s.events))
	for i, e := range s.events {
		types[i] = e.Type
	}
	return types
}
