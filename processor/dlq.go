package processor

import (
	"context"
	"time"

	"github.com/relaymesh/event-relay/models"
	"go.uber.org/zap"
)

// Publisher is the broker capability the dead letter dispatcher depends on:
// the ability to send one record to a named queue under the given routing
// options. Delivery guarantees and error taxonomy are owned by the
// implementation.
type Publisher interface {
	Publish(ctx context.Context, queue string, record *models.DLQRecord, options models.PublishOptions) error
}

// Dispatcher routes events that could not be processed to the configured
// dead letter queue. When no (queue, exchange) pair is configured the event
// is dropped with a warning instead.
type Dispatcher struct {
	Target    *models.DLQTarget
	Publisher Publisher
	Logger    *zap.SugaredLogger
}

func NewDispatcher(target *models.DLQTarget, publisher Publisher, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		Target:    target,
		Publisher: publisher,
		Logger:    logger,
	}
}

// Handle republishes the failed event to the dead letter queue, blocking
// until the publish attempt completes. Publish failures are returned to the
// caller unmodified, there is no retry here and no second level dead letter.
func (d *Dispatcher) Handle(ctx context.Context, event *models.EventMessage, failureType string, cause error) error {
	if !d.Target.IsConfigured() {
		d.Logger.Warnw("Event discarded, no dead letter queue configured", "eventId", event.ID)
		return nil
	}

	d.Logger.Warnw("Publishing failed event to dead letter queue",
		"eventId", event.ID, "queue", d.Target.Queue, "failureType", failureType)

	record := newDLQRecord(event, failureType, cause)
	return d.Publisher.Publish(ctx, d.Target.Queue, record, models.PublishOptions{Exchange: d.Target.Exchange})
}

func newDLQRecord(event *models.EventMessage, failureType string, cause error) *models.DLQRecord {
	if failureType == "" {
		failureType = models.FailureTypeUnknown
	}
	now := time.Now().UTC()
	record := &models.DLQRecord{
		MessageID:     event.ID,
		Channel:       event.Channel,
		Event:         event,
		Attempts:      1,
		FailureType:   failureType,
		FirstFailedAt: now,
		LastAttemptAt: now,
	}
	if cause != nil {
		record.LastError = cause.Error()
	}
	return record
}
