package amqp

import (
	"testing"
	"time"
)

func TestNewLocationResolveMessage(t *testing.T) {
	msg := NewLocationResolveMessage("Pavilion KL")

	if msg.Name != "Pavilion KL" {
		t.Errorf("Name = %q, want %q", msg.Name, "Pavilion KL")
	}
	if msg.RequestedAt.IsZero() {
		t.Error("RequestedAt should not be zero")
	}
	if time.Since(msg.RequestedAt) > time.Second {
		t.Error("RequestedAt should be recent")
	}
}

func TestLocationResolveMessage_JSON(t *testing.T) {
	requestedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := &LocationResolveMessage{
		Name:        "Sunway Pyramid",
		RequestedAt: requestedAt,
	}

	jsonBytes, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := LocationResolveMessageFromJSON(jsonBytes)
	if err != nil {
		t.Fatalf("LocationResolveMessageFromJSON() error = %v", err)
	}

	if parsed.Name != msg.Name {
		t.Errorf("Parsed Name = %q, want %q", parsed.Name, msg.Name)
	}
	if !parsed.RequestedAt.Equal(msg.RequestedAt) {
		t.Errorf("Parsed RequestedAt = %v, want %v", parsed.RequestedAt, msg.RequestedAt)
	}
}

func TestLocationResolveMessage_InvalidJSON(t *testing.T) {
	invalidJSON := []byte(`{"name": 42}`)

	_, err := LocationResolveMessageFromJSON(invalidJSON)
	if err == nil {
		t.Error("LocationResolveMessageFromJSON() should fail with invalid JSON")
	}
}
