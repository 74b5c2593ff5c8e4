package kafka

import (
	"testing"
)

func TestMessageKey_KeyForPartitioning(t *testing.T) {
	t.Run("partition key set", func(t *testing.T) {
		got := MessageKey{PartitionKey: "vendor-1"}.KeyForPartitioning()
		if got != "vendor-1" {
			t.Errorf("expected 'vendor-1', got '%s'", got)
		}
	})

	t.Run("partition key not set", func(t *testing.T) {
		got := MessageKey{Key: "baz"}.KeyForPartitioning()
		if got != "baz" {
			t.Errorf("expected 'baz', got '%s'", got)
		}
	})
}

func TestNewMessageKey_EncodesKey(t *testing.T) {
	b, err := newMessageKey("msg-1", "vendor-1").Encode()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if string(b) != "msg-1" {
		t.Errorf("expected the record key to be 'msg-1', got '%s'", b)
	}
}
