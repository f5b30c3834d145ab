package outcome

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/constants"
	"skill-routing-engine/pkg/metrics"
	"skill-routing-engine/pkg/models"
)

// StreamPublisher appends outcomes to the routing_outcomes Redis stream
type StreamPublisher struct {
	rdb     *redis.Client
	stream  string
	maxLen  int64
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// NewStreamPublisher builds a publisher; maxLen > 0 caps the stream
// approximately at that many entries
func NewStreamPublisher(rdb *redis.Client, maxLen int64, logger *logrus.Logger, metrics *metrics.Metrics) *StreamPublisher {
	return &StreamPublisher{
		rdb:     rdb,
		stream:  constants.OutcomesStream,
		maxLen:  maxLen,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *StreamPublisher) Name() string {
	return "redis"
}

func (p *StreamPublisher) Publish(ctx context.Context, outcome *models.RoutingOutcome) error {
	start := time.Now()
	defer func() {
		p.metrics.RedisOperationDuration.WithLabelValues("publish_outcome").Observe(time.Since(start).Seconds())
	}()

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal routing outcome: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"outcome_id":      outcome.OutcomeID,
			"conversation_id": outcome.ConversationID,
			"skill_id":        outcome.SelectedSkillID,
			"status":          string(outcome.Status),
			"channel":         string(outcome.Channel),
			"decided_at":      outcome.DecidedAt.UnixMilli(),
			"outcome_data":    string(data),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	messageID, err := p.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to add message to stream: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"conversation_id": outcome.ConversationID,
		"status":          outcome.Status,
		"message_id":      messageID,
	}).Debug("Published routing outcome to stream")

	return nil
}

func (p *StreamPublisher) Close() error {
	return nil
}
