package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/catalogue"
	"skill-routing-engine/pkg/constants"
	"skill-routing-engine/pkg/conversation"
	"skill-routing-engine/pkg/metrics"
	"skill-routing-engine/pkg/models"
	"skill-routing-engine/pkg/outcome"
)

var ErrInvalidEvent = errors.New("invalid inbound event")

// SnapshotSource supplies the current catalogue snapshot
type SnapshotSource interface {
	Snapshot() (*catalogue.Snapshot, error)
}

// Service wraps the orchestrator with per-conversation locking, state
// persistence, outcome publishing and the leader-only idle sweep
type Service struct {
	orchestrator    *Orchestrator
	catalogue       SnapshotSource
	conversations   *conversation.Store
	locker          *conversation.Locker
	publisher       outcome.Publisher
	leaderElection  *conversation.LeaderElection
	conversationTTL time.Duration
	cleanupInterval time.Duration
	logger          *logrus.Logger
	metrics         *metrics.Metrics
}

type ServiceConfig struct {
	ConversationTTL time.Duration
	CleanupInterval time.Duration
}

func NewService(
	orchestrator *Orchestrator,
	source SnapshotSource,
	conversations *conversation.Store,
	locker *conversation.Locker,
	publisher outcome.Publisher,
	leaderElection *conversation.LeaderElection,
	cfg ServiceConfig,
	logger *logrus.Logger,
	metrics *metrics.Metrics,
) *Service {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = constants.SecondsToDuration(constants.DefaultCleanupIntervalSeconds)
	}
	if cfg.ConversationTTL <= 0 {
		cfg.ConversationTTL = constants.SecondsToDuration(constants.DefaultConversationTTLSeconds)
	}
	return &Service{
		orchestrator:    orchestrator,
		catalogue:       source,
		conversations:   conversations,
		locker:          locker,
		publisher:       publisher,
		leaderElection:  leaderElection,
		conversationTTL: cfg.ConversationTTL,
		cleanupInterval: cfg.CleanupInterval,
		logger:          logger,
		metrics:         metrics,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.logger.Info("Starting routing service")

	if s.leaderElection != nil {
		s.leaderElection.Start(ctx)
		go s.cleanupRoutine(ctx)
	}
}

func (s *Service) Stop() {
	s.logger.Info("Stopping routing service")

	if s.leaderElection != nil {
		s.leaderElection.Stop()
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close outcome publishers")
		}
	}
}

func (s *Service) IsLeader(ctx context.Context) bool {
	return s.leaderElection != nil && s.leaderElection.IsLeader(ctx)
}

// HandleEvent routes one event while holding the conversation's lock. A
// concurrent call for the same conversation gets ErrConversationLocked.
func (s *Service) HandleEvent(ctx context.Context, event models.InboundEvent) (*models.RoutingOutcome, error) {
	if err := normalizeEvent(&event); err != nil {
		return nil, err
	}

	snap, err := s.catalogue.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("catalogue unavailable: %w", err)
	}

	lock, err := s.locker.Acquire(ctx, event.ConversationID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			s.logger.WithError(err).WithField("conversation_id", event.ConversationID).Error("Failed to release conversation lock")
		}
	}()

	conv, err := s.conversations.Load(ctx, event.ConversationID)
	if err != nil {
		return nil, err
	}

	result, next := s.orchestrator.Route(ctx, snap, conv, event)

	if err := s.conversations.Save(ctx, next); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		// Sinks are best effort; the decision stands either way
		if err := s.publisher.Publish(ctx, result); err != nil {
			s.logger.WithError(err).WithField("outcome_id", result.OutcomeID).Warn("Routing outcome not fully published")
		}
	}

	return result, nil
}

// Conversation returns the stored state of a conversation
func (s *Service) Conversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	return s.conversations.Get(ctx, conversationID)
}

// CloseConversation forgets a conversation's stored state
func (s *Service) CloseConversation(ctx context.Context, conversationID string) error {
	lock, err := s.locker.Acquire(ctx, conversationID)
	if err != nil {
		return err
	}
	defer lock.Release(context.Background())

	return s.conversations.Delete(ctx, conversationID)
}

func (s *Service) cleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	if _, err := s.conversations.ActiveCount(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to count active conversations")
	}

	if !s.leaderElection.IsLeader(ctx) {
		return
	}
	if _, err := s.conversations.CleanupExpired(ctx, s.conversationTTL); err != nil {
		s.logger.WithError(err).Error("Failed to cleanup expired conversations")
	}
}

func normalizeEvent(event *models.InboundEvent) error {
	if event.ConversationID == "" {
		return fmt.Errorf("%w: conversation id is required", ErrInvalidEvent)
	}
	if event.Channel != models.ChannelSMS && event.Channel != models.ChannelVoice {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidEvent, event.Channel)
	}
	if event.Confidence < 0 || event.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidEvent, event.Confidence)
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.TimestampUTC.IsZero() {
		event.TimestampUTC = time.Now().UTC()
	}
	event.TimestampUTC = event.TimestampUTC.UTC()
	return nil
}

// ActiveConversations returns the number of conversations with stored state
func (s *Service) ActiveConversations(ctx context.Context) (int64, error) {
	return s.conversations.ActiveCount(ctx)
}
