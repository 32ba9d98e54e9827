package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaymesh/event-relay/config"
	"github.com/relaymesh/event-relay/models"
)

func NewEventProcessor(ctx context.Context, appConfig *config.Configuration, errChan chan Error) (*Processor, error) {
	return NewProcessor(ctx, appConfig, appConfig.EventProject, appConfig.EventSubscription, appConfig.EventRoutingKey, convertToOutboundEvent, unmarshalEventMessage, errChan)
}

func unmarshalEventMessage(data []byte) (models.InboundMessage, error) {
	var event models.EventMessage
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	return event, nil
}

// convertToOutboundEvent normalises an inbound event for downstream
// consumers, filling in the relay source and stamping a timestamp when the
// producer did not send one. The payload is never touched.
func convertToOutboundEvent(inbound models.InboundMessage) (*models.EventMessage, error) {
	event, ok := inbound.(models.EventMessage)
	if !ok {
		return nil, fmt.Errorf("wrong message model given to convertToOutboundEvent: %T, only accepts EventMessage, id: %q", inbound, inbound.GetID())
	}

	outbound := event
	if outbound.Source == "" {
		outbound.Source = "EVENT_RELAY"
	}
	if outbound.OccurredAt == nil {
		outbound.OccurredAt = &models.HazyUtcTime{Time: time.Now().UTC()}
	}

	return &outbound, nil
}
