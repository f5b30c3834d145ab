package activity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/constants"
	"skill-routing-engine/pkg/metrics"
)

const (
	retention    = 30 * 24 * time.Hour
	claimMinIdle = time.Minute
)

// The outcome id set makes redelivered messages count once
const recordScript = `
	if redis.call("SADD", KEYS[2], ARGV[1]) == 0 then
		return 0
	end
	redis.call("HINCRBY", KEYS[1], "total", 1)
	redis.call("HINCRBY", KEYS[1], "status:" .. ARGV[2], 1)
	redis.call("HINCRBY", KEYS[1], "channel:" .. ARGV[3], 1)
	if ARGV[4] ~= "" then
		redis.call("HINCRBY", KEYS[1], "skill:" .. ARGV[4], 1)
	end
	redis.call("PEXPIRE", KEYS[1], ARGV[5])
	redis.call("PEXPIRE", KEYS[2], ARGV[5])
	return 1
`

// Record is the part of a routing outcome the activity log aggregates
type Record struct {
	OutcomeID string
	Status    string
	Channel   string
	SkillID   string
	DecidedAt time.Time
}

// Consumer aggregates published routing outcomes into per-day counters. It
// reads the outcome stream through a consumer group so several pods share the
// work, and reclaims messages left pending by a pod that died.
type Consumer struct {
	rdb          *redis.Client
	group        string
	consumerName string
	logger       *logrus.Logger
	metrics      *metrics.Metrics
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewConsumer(rdb *redis.Client, group, podID string, logger *logrus.Logger, metrics *metrics.Metrics) *Consumer {
	return &Consumer{
		rdb:          rdb,
		group:        group,
		consumerName: fmt.Sprintf("consumer-%s", podID),
		logger:       logger,
		metrics:      metrics,
		stopCh:       make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	c.logger.WithField("consumer_name", c.consumerName).Info("Starting activity consumer")

	if err := c.createConsumerGroup(ctx); err != nil {
		return err
	}

	go c.consumeLoop(ctx)
	go c.pendingMessagesRecovery(ctx)

	return nil
}

func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Consumer) createConsumerGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, constants.OutcomesStream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.WithField("consumer_group", c.group).Info("Consumer group ready")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
			c.consumeMessages(ctx)
		}
	}
}

func (c *Consumer) consumeMessages(ctx context.Context) {
	start := time.Now()

	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumerName,
		Streams:  []string{constants.OutcomesStream, ">"},
		Count:    10,
		Block:    time.Second,
	}).Result()

	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			c.logger.WithError(err).Error("Failed to read from stream")
			time.Sleep(time.Second)
		}
		return
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			c.processMessage(ctx, message)
		}
	}

	if len(streams) > 0 {
		c.metrics.StreamProcessingDuration.Observe(time.Since(start).Seconds())
	}
}

func (c *Consumer) processMessage(ctx context.Context, message redis.XMessage) {
	record, err := ParseRecord(message)
	if err != nil {
		c.logger.WithError(err).WithField("message_id", message.ID).Error("Failed to parse routing outcome")
		c.metrics.StreamMessagesProcessed.WithLabelValues("parse_error").Inc()
		// Acknowledge message to prevent reprocessing
		c.acknowledgeMessage(ctx, message.ID)
		return
	}

	if err := c.record(ctx, record); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"outcome_id": record.OutcomeID,
			"message_id": message.ID,
		}).Error("Failed to aggregate routing outcome")
		c.metrics.StreamMessagesProcessed.WithLabelValues("aggregate_error").Inc()
		// Don't acknowledge - let it retry
		return
	}

	if err := c.acknowledgeMessage(ctx, message.ID); err != nil {
		c.logger.WithError(err).WithField("message_id", message.ID).Error("Failed to acknowledge message")
		return
	}

	c.metrics.StreamMessagesProcessed.WithLabelValues("success").Inc()
}

func (c *Consumer) record(ctx context.Context, r *Record) error {
	start := time.Now()
	defer func() {
		c.metrics.RedisOperationDuration.WithLabelValues("record_activity").Observe(time.Since(start).Seconds())
	}()

	day := constants.ActivityKey(r.DecidedAt)
	keys := []string{day, day + ":seen"}
	return c.rdb.Eval(ctx, recordScript, keys,
		r.OutcomeID, r.Status, r.Channel, r.SkillID, retention.Milliseconds()).Err()
}

func (c *Consumer) acknowledgeMessage(ctx context.Context, messageID string) error {
	return c.rdb.XAck(ctx, constants.OutcomesStream, c.group, messageID).Err()
}

func (c *Consumer) pendingMessagesRecovery(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.processPendingMessages(ctx, claimMinIdle)
		}
	}
}

func (c *Consumer) processPendingMessages(ctx context.Context, minIdle time.Duration) {
	pending, err := c.rdb.XPending(ctx, constants.OutcomesStream, c.group).Result()
	if err != nil {
		c.logger.WithError(err).Error("Failed to get pending messages")
		return
	}
	if pending.Count == 0 {
		return
	}

	c.logger.WithField("pending_count", pending.Count).Info("Processing pending messages")

	messages, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   constants.OutcomesStream,
		Group:    c.group,
		Consumer: c.consumerName,
		MinIdle:  minIdle,
		Count:    10,
		Start:    "0-0",
	}).Result()
	if err != nil {
		c.logger.WithError(err).Error("Failed to auto-claim pending messages")
		return
	}

	for _, message := range messages {
		c.processMessage(ctx, message)
	}
}

// ParseRecord extracts an activity record from an outcome stream message
func ParseRecord(message redis.XMessage) (*Record, error) {
	r := &Record{}

	var ok bool
	if r.OutcomeID, ok = message.Values["outcome_id"].(string); !ok || r.OutcomeID == "" {
		return nil, fmt.Errorf("missing or invalid outcome_id")
	}
	if r.Status, ok = message.Values["status"].(string); !ok || r.Status == "" {
		return nil, fmt.Errorf("missing or invalid status")
	}
	if r.Channel, ok = message.Values["channel"].(string); !ok {
		return nil, fmt.Errorf("missing or invalid channel")
	}
	r.SkillID, _ = message.Values["skill_id"].(string)

	decidedAt, ok := message.Values["decided_at"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid decided_at")
	}
	ms, err := strconv.ParseInt(decidedAt, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid decided_at format: %w", err)
	}
	r.DecidedAt = time.UnixMilli(ms).UTC()

	return r, nil
}
