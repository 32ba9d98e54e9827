package models

import (
	"encoding/json"

	"github.com/relaymesh/event-relay/validate"
)

type InboundMessage interface {
	GetID() string
}

// EventMessage is the unit of work flowing through the relay. The payload is
// an opaque blob owned by the upstream message contract, only the routing
// metadata is interpreted here.
type EventMessage struct {
	ID         string          `json:"id" validate:"required"`
	Type       string          `json:"type" validate:"required"`
	Source     string          `json:"source,omitempty"`
	Channel    string          `json:"channel,omitempty"`
	OccurredAt *HazyUtcTime    `json:"occurredAt,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func (e EventMessage) GetID() string {
	return e.ID
}

// RawPayload returns data as a JSON payload, quoting it as a JSON string when
// it is not already valid JSON so an event carrying it stays marshallable.
func RawPayload(data []byte) json.RawMessage {
	if json.Valid(data) {
		return data
	}
	quoted, _ := json.Marshal(string(data))
	return quoted
}

func (e EventMessage) Validate() error {
	return validate.Validate.Struct(e)
}
