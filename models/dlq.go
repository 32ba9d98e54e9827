package models

import "time"

// Failure types recorded against dead lettered events.
const (
	FailureTypePermanent  = "permanent"
	FailureTypeTransient  = "transient"
	FailureTypeValidation = "validation"
	FailureTypeUnknown    = "unknown"
)

// ExchangeConfig is opaque routing metadata handed through to the broker.
type ExchangeConfig struct {
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}

// DLQTarget is the optional (queue, exchange) pair failed events are
// republished to.
type DLQTarget struct {
	Queue    string
	Exchange *ExchangeConfig
}

// IsConfigured reports whether the target names both a queue and an exchange.
// Republishing must never be attempted when either half is missing.
func (d *DLQTarget) IsConfigured() bool {
	return d != nil && d.Queue != "" && d.Exchange != nil && d.Exchange.Name != ""
}

// PublishOptions carries the routing options for a single publish.
type PublishOptions struct {
	Exchange *ExchangeConfig
}

// DLQRecord is the envelope written to the dead letter queue. The original
// event is embedded unmodified so it can be replayed later.
type DLQRecord struct {
	MessageID     string        `json:"messageId"`
	Channel       string        `json:"channel,omitempty"`
	Event         *EventMessage `json:"event"`
	Attempts      int           `json:"attempts"`
	FailureType   string        `json:"failureType"`
	LastError     string        `json:"lastError,omitempty"`
	FirstFailedAt time.Time     `json:"firstFailedAt"`
	LastAttemptAt time.Time     `json:"lastAttemptAt"`
}
