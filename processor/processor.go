package processor

import (
	"context"

	"cloud.google.com/go/pubsub"
	"github.com/pkg/errors"
	"github.com/relaymesh/event-relay/config"
	"github.com/relaymesh/event-relay/logger"
	"github.com/relaymesh/event-relay/models"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

type messageUnmarshaller func([]byte) (models.InboundMessage, error)

type messageConverter func(message models.InboundMessage) (*models.EventMessage, error)

type Error struct {
	Err error
	*Processor
}

type Processor struct {
	Name                 string
	RabbitConn           *amqp.Connection
	RabbitRoutingKey     string
	RabbitChannels       []RabbitChannel
	OutboundMsgChan      chan *models.OutboundMessage
	Config               *config.Configuration
	PubSubProject        string
	PubSubSubscriptionId string
	PubSubClient         *pubsub.Client
	PubSubSubscription   *pubsub.Subscription
	unmarshallMessage    messageUnmarshaller
	convertMessage       messageConverter
	DLQ                  *Dispatcher
	DLQPublisher         *RabbitPublisher
	ErrChan              chan Error
	Logger               *zap.SugaredLogger
	Context              context.Context
	Cancel               context.CancelFunc
}

func NewProcessor(ctx context.Context,
	appConfig *config.Configuration,
	pubSubProject string,
	pubSubSubscription string,
	routingKey string,
	messageConverter messageConverter,
	messageUnmarshaller messageUnmarshaller, errChan chan Error) (*Processor, error) {
	p := &Processor{}
	p.Name = pubSubSubscription + ">" + routingKey
	p.PubSubSubscriptionId = pubSubSubscription
	p.PubSubProject = pubSubProject
	p.Config = appConfig
	p.RabbitRoutingKey = routingKey
	p.convertMessage = messageConverter
	p.unmarshallMessage = messageUnmarshaller
	p.ErrChan = errChan
	p.OutboundMsgChan = make(chan *models.OutboundMessage)
	p.RabbitChannels = make([]RabbitChannel, 0)
	p.Logger = logger.Logger.With("processor", p.Name)
	p.DLQPublisher = &RabbitPublisher{Logger: p.Logger}
	p.DLQ = NewDispatcher(appConfig.DLQTarget(), p.DLQPublisher, p.Logger)

	if err := p.Initialise(ctx); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Processor) Initialise(ctx context.Context) (err error) {
	// Set up context
	p.Context, p.Cancel = context.WithCancel(ctx)

	// Initialise PubSub
	if err := p.initPubSub(); err != nil {
		return err
	}

	// Initialise consuming from PubSub
	p.Logger.Infow("Launching PubSub message receiver")
	go p.Consume()

	// Initialise and manage publisher workers
	go p.startPublishers(ctx)
	return nil
}

func (p *Processor) initPubSub() (err error) {
	// Set up PubSub connection
	p.PubSubClient, err = pubsub.NewClient(p.Context, p.PubSubProject)
	if err != nil {
		return errors.Wrap(err, "error settings up PubSub client")
	}

	// Set up PubSub subscription
	p.PubSubSubscription = p.PubSubClient.Subscription(p.PubSubSubscriptionId)
	return nil
}

func (p *Processor) Consume() {
	err := p.PubSubSubscription.Receive(p.Context, p.Process)
	if err != nil {
		p.Logger.Errorw("Error in consumer", "error", err)
		p.ReportError(err)
	}
}

func (p *Processor) Process(_ context.Context, msg *pubsub.Message) {
	ctxLogger := p.Logger.With("msgId", msg.ID)
	messageReceived, err := p.unmarshallMessage(msg.Data)
	if err != nil {
		ctxLogger.Errorw("Error unmarshalling message, dead lettering", "error", err, "data", string(msg.Data))

		// The message never became a valid event so the PubSub message ID is
		// the only identifier we have for it
		badEvent := &models.EventMessage{ID: msg.ID, Payload: models.RawPayload(msg.Data)}
		p.deadLetter(ctxLogger, msg, badEvent, models.FailureTypeValidation, err)
		return
	}
	ctxLogger = ctxLogger.With("eventId", messageReceived.GetID())
	ctxLogger.Debugw("Processing message")
	eventToSend, err := p.convertMessage(messageReceived)
	if err != nil {
		ctxLogger.Errorw("Error converting message, dead lettering", "error", err)
		badEvent := &models.EventMessage{ID: messageReceived.GetID(), Payload: msg.Data}
		p.deadLetter(ctxLogger, msg, badEvent, models.FailureTypePermanent, err)
		return
	}
	ctxLogger.Debugw("Sending outbound event to publish", "msgData", string(msg.Data))
	p.OutboundMsgChan <- &models.OutboundMessage{SourceMessage: msg, EventMessage: eventToSend}
}

// deadLetter hands a failed event to the dispatcher and settles the source
// message: acked once the event is dead lettered or deliberately discarded,
// nacked for redelivery when the dead letter publish itself fails.
func (p *Processor) deadLetter(ctxLogger *zap.SugaredLogger, msg models.PubSubMessage, event *models.EventMessage, failureType string, cause error) {
	if err := p.DLQ.Handle(p.Context, event, failureType, cause); err != nil {
		ctxLogger.Errorw("Error dead lettering event, nacking", "error", err)
		msg.Nack()
		return
	}
	msg.Ack()
}

func (p *Processor) Stop() {
	p.Logger.Debug("Stopping processor")
	p.Cancel()
	p.CloseRabbit(false)
}

func (p *Processor) Restart(ctx context.Context) {
	p.Stop()
	if err := p.Initialise(ctx); err != nil {
		logger.Logger.Errorw("Failed to restart processor", "error", err, "processor", p.Name)
		p.ReportError(err)
	}

}

func (p *Processor) ReportError(err error) {
	// Writing to a channel is a blocking operation, it waits till there is a consumer ready.
	// Do it in a go routine to ensure it gets written without blocking the caller.
	go func() {
		p.ErrChan <- Error{
			Err:       err,
			Processor: p,
		}
	}()
}
