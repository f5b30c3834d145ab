package outcome

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher sends outcomes to a Kafka topic keyed by conversation id,
// so one conversation's outcomes stay ordered within a partition
type KafkaPublisher struct {
	writer messageWriter
	logger *logrus.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) Name() string {
	return "kafka"
}

func (p *KafkaPublisher) Publish(ctx context.Context, outcome *models.RoutingOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal routing outcome: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(outcome.ConversationID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(outcome.Status)},
			{Key: "outcome_id", Value: []byte(outcome.OutcomeID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write outcome to kafka: %w", err)
	}

	p.logger.WithField("conversation_id", outcome.ConversationID).Debug("Sent routing outcome to Kafka")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
