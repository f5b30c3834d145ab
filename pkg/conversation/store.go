package conversation

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

// Store keeps per-conversation routing state in Redis. Each conversation is a
// JSON value under conversation:<id> with a TTL, indexed by last update in the
// active_conversations sorted set for the sweeper.
type Store struct {
	rdb     *redis.Client
	ttl     time.Duration
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func NewStore(rdb *redis.Client, ttl time.Duration, logger *logrus.Logger, metrics *metrics.Metrics) *Store {
	if ttl <= 0 {
		ttl = constants.SecondsToDuration(constants.DefaultConversationTTLSeconds)
	}
	return &Store{
		rdb:     rdb,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// Load returns the stored conversation, or a fresh one when none exists
func (s *Store) Load(ctx context.Context, conversationID string) (*models.Conversation, error) {
	start := time.Now()
	defer func() {
		s.metrics.RedisOperationDuration.WithLabelValues("load_conversation").Observe(time.Since(start).Seconds())
	}()

	conv, err := s.get(ctx, conversationID)
	if err == redis.Nil {
		return models.NewConversation(conversationID), nil
	}
	return conv, err
}

// Get returns the stored conversation or redis.Nil
func (s *Store) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	return s.get(ctx, conversationID)
}

func (s *Store) get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	raw, err := s.rdb.Get(ctx, constants.ConversationKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	var conv models.Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("invalid conversation state: %w", err)
	}
	return &conv, nil
}

// Save writes the conversation and refreshes its position in the sweep index
func (s *Store) Save(ctx context.Context, conv *models.Conversation) error {
	start := time.Now()
	defer func() {
		s.metrics.RedisOperationDuration.WithLabelValues("save_conversation").Observe(time.Since(start).Seconds())
	}()

	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, constants.ConversationKey(conv.ID), data, s.ttl)
	pipe.ZAdd(ctx, constants.ActiveConversationsKey, &redis.Z{
		Score:  float64(conv.UpdatedAt.UnixMilli()),
		Member: conv.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).WithField("conversation_id", conv.ID).Error("Failed to save conversation")
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"skill_id":        conv.SkillID,
		"resume_at":       conv.ResumeAt,
	}).Debug("Saved conversation state")

	return nil
}

// Delete forgets a conversation
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	start := time.Now()
	defer func() {
		s.metrics.RedisOperationDuration.WithLabelValues("delete_conversation").Observe(time.Since(start).Seconds())
	}()

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, constants.ConversationKey(conversationID))
	pipe.ZRem(ctx, constants.ActiveConversationsKey, conversationID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// ActiveCount returns the number of conversations in the sweep index
func (s *Store) ActiveCount(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, constants.ActiveConversationsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count active conversations: %w", err)
	}
	s.metrics.ActiveConversationsCount.Set(float64(count))
	return count, nil
}

// CleanupExpired removes conversations idle for longer than maxAge and
// returns how many were removed
func (s *Store) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	start := time.Now()
	defer func() {
		s.metrics.RedisOperationDuration.WithLabelValues("cleanup_expired").Observe(time.Since(start).Seconds())
	}()

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	stale, err := s.rdb.ZRangeByScore(ctx, constants.ActiveConversationsKey, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list stale conversations: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	pipe := s.rdb.TxPipeline()
	for _, id := range stale {
		pipe.Del(ctx, constants.ConversationKey(id))
	}
	members := make([]interface{}, len(stale))
	for i, id := range stale {
		members[i] = id
	}
	pipe.ZRem(ctx, constants.ActiveConversationsKey, members...)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to cleanup expired conversations: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"removed_count": len(stale),
		"max_age":       maxAge,
	}).Info("Cleaned up expired conversations")

	return len(stale), nil
}
