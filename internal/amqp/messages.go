package amqp

import (
	"encoding/json"
	"time"
)

// LocationResolveMessage asks the geocode worker to resolve one location
// name. The message carries only the name; the worker owns the cache and
// the ledger write-back, so a duplicate delivery costs nothing.
type LocationResolveMessage struct {
	Name        string    `json:"name"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewLocationResolveMessage(name string) *LocationResolveMessage {
	return &LocationResolveMessage{
		Name:        name,
		RequestedAt: time.Now(),
	}
}

func (m *LocationResolveMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LocationResolveMessageFromJSON(data []byte) (*LocationResolveMessage, error) {
	var msg LocationResolveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
