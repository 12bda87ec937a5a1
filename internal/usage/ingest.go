package usage

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/billablemetric"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/kafka"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
)

// kafkaIngestor validates a raw event and publishes it to the raw topic,
// spec §4.5. Grounded on vidinfra-flexprice/internal/kafka/producer.go's
// PublishWithID pattern.
type kafkaIngestor struct {
	producer kafka.MessageProducer
	rawTopic string
	log      *logger.Logger
}

func NewKafkaIngestor(producer kafka.MessageProducer, rawTopic string, log *logger.Logger) Ingestor {
	return &kafkaIngestor{producer: producer, rawTopic: rawTopic, log: log}
}

func (k *kafkaIngestor) Ingest(ctx context.Context, ev Event) error {
	if ev.TenantID == "" || ev.Code == "" || ev.ID == "" {
		return ierr.NewError("usage event missing required field").
			WithHint("id, tenant_id and code are required").
			Mark(ierr.ErrValidation)
	}
	if ev.CustomerID == nil && ev.CustomerAlias == nil {
		return ierr.NewError("usage event must identify a customer").
			WithHint("one of customer_id or customer_alias is required").
			Mark(ierr.ErrValidation)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return ierr.WithError(err).WithHint("failed to encode usage event").Mark(ierr.ErrSystem)
	}
	if err := k.producer.PublishWithID(k.rawTopic, payload, ev.ID); err != nil {
		return ierr.WithError(err).WithHint("failed to publish usage event").Mark(ierr.ErrSystem)
	}
	return nil
}

// kafkaPreprocessor consumes the raw topic, resolves the billable metric,
// and writes the enriched, deduplicated event to the preprocessed Store,
// spec §4.5.
type kafkaPreprocessor struct {
	metrics billablemetric.Repository
	store   Store
	log     *logger.Logger
}

func NewKafkaPreprocessor(metrics billablemetric.Repository, store Store, log *logger.Logger) Preprocessor {
	return &kafkaPreprocessor{metrics: metrics, store: store, log: log}
}

func (p *kafkaPreprocessor) Process(ctx context.Context, ev Event, metricID string) error {
	customerID := ""
	if ev.CustomerID != nil {
		customerID = *ev.CustomerID
	}

	pe := PreprocessedEvent{
		Event:            ev,
		BillableMetricID: metricID,
		DedupeKey:        BuildDedupeKey(ev.TenantID, ev.Code, metricID, customerID, ev.Timestamp, ev.ID),
	}
	if err := p.store.Write(ctx, pe); err != nil {
		return ierr.WithError(err).WithHint("failed to write preprocessed usage event").Mark(ierr.ErrSystem)
	}
	return nil
}

// RunConsumeLoop drains the raw topic and hands each message to process,
// acking only once process returns nil — grounded on
// vidinfra-flexprice/internal/kafka/consumer.go's channel-based Subscribe.
func RunConsumeLoop(ctx context.Context, consumer kafka.MessageConsumer, topic string, process func(context.Context, *message.Message) error, log *logger.Logger) error {
	messages, err := consumer.Subscribe(topic)
	if err != nil {
		return ierr.WithError(err).WithHint("failed to subscribe to usage topic").Mark(ierr.ErrInitialization)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := process(ctx, msg); err != nil {
				log.Errorw("failed to process usage event", "error", err, "message_id", msg.UUID)
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}
