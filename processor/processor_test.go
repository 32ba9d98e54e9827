package processor

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/relaymesh/event-relay/models"
	"github.com/stretchr/testify/mock"
)

func TestProcessor_DeadLetter_AcksOnSuccessfulDispatch(t *testing.T) {
	// Given
	testProcessor := newTestProcessor()
	testProcessor.Context = context.Background()

	mockPublisher := new(MockPublisher)
	mockPublisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	testProcessor.DLQ = NewDispatcher(testDLQTarget(), mockPublisher, testProcessor.Logger)

	mockSourceMessage := new(MockPubSubMessage)
	mockSourceMessage.On("Ack").Once()

	// When
	testProcessor.deadLetter(testProcessor.Logger, mockSourceMessage,
		&models.EventMessage{ID: "evt-42"}, models.FailureTypePermanent, errors.New("handler exploded"))

	// Then
	mockPublisher.AssertExpectations(t)
	mockSourceMessage.AssertExpectations(t)
}

func TestProcessor_DeadLetter_AcksOnDeliberateDiscard(t *testing.T) {
	// Given
	testProcessor := newTestProcessor()
	testProcessor.Context = context.Background()

	// No DLQ configured, the dispatcher drops the event without publishing
	mockPublisher := new(MockPublisher)
	testProcessor.DLQ = NewDispatcher(nil, mockPublisher, testProcessor.Logger)

	mockSourceMessage := new(MockPubSubMessage)
	mockSourceMessage.On("Ack").Once()

	// When
	testProcessor.deadLetter(testProcessor.Logger, mockSourceMessage,
		&models.EventMessage{ID: "evt-7"}, models.FailureTypeValidation, errors.New("bad payload"))

	// Then
	mockPublisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	mockSourceMessage.AssertExpectations(t)
}

func TestProcessor_DeadLetter_NacksOnDispatchFailure(t *testing.T) {
	// Given
	testProcessor := newTestProcessor()
	testProcessor.Context = context.Background()

	mockPublisher := new(MockPublisher)
	mockPublisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker unreachable")).Once()
	testProcessor.DLQ = NewDispatcher(testDLQTarget(), mockPublisher, testProcessor.Logger)

	// The source message must be nacked for redelivery, not acked and lost
	mockSourceMessage := new(MockPubSubMessage)
	mockSourceMessage.On("Nack").Once()

	// When
	testProcessor.deadLetter(testProcessor.Logger, mockSourceMessage,
		&models.EventMessage{ID: "evt-42"}, models.FailureTypeTransient, errors.New("handler exploded"))

	// Then
	mockPublisher.AssertExpectations(t)
	mockSourceMessage.AssertExpectations(t)
}

// Helpers

func testDLQTarget() *models.DLQTarget {
	return &models.DLQTarget{
		Queue:    "orders.dlq",
		Exchange: &models.ExchangeConfig{Name: "dlx", Kind: "direct"},
	}
}
