package models

type OutboundMessage struct {
	EventMessage  *EventMessage
	SourceMessage PubSubMessage
}

type PubSubMessage interface {
	Ack()
	Nack()
}
