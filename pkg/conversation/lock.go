package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/constants"
	"skill-routing-engine/pkg/metrics"
)

var ErrConversationLocked = errors.New("conversation is being evaluated by another caller")

const releaseScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// Locker hands out per-conversation single-writer leases
type Locker struct {
	rdb     *redis.Client
	ttl     time.Duration
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func NewLocker(rdb *redis.Client, ttl time.Duration, logger *logrus.Logger, metrics *metrics.Metrics) *Locker {
	if ttl <= 0 {
		ttl = constants.MillisecondsToDuration(constants.DefaultLockTTLMS)
	}
	return &Locker{
		rdb:     rdb,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// Lock is a held lease. The token guards against releasing a lease that
// expired and was taken by someone else.
type Lock struct {
	locker         *Locker
	conversationID string
	token          string
}

// Acquire takes the lease for a conversation or returns ErrConversationLocked
func (l *Locker) Acquire(ctx context.Context, conversationID string) (*Lock, error) {
	start := time.Now()
	defer func() {
		l.metrics.RedisOperationDuration.WithLabelValues("acquire_lock").Observe(time.Since(start).Seconds())
	}()

	token := uuid.New().String()
	ok, err := l.rdb.SetNX(ctx, constants.LockKey(conversationID), token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire conversation lock: %w", err)
	}
	if !ok {
		l.metrics.ConversationLockBusy.Inc()
		return nil, fmt.Errorf("%w: %s", ErrConversationLocked, conversationID)
	}

	return &Lock{locker: l, conversationID: conversationID, token: token}, nil
}

// Release gives the lease back if it is still ours
func (lk *Lock) Release(ctx context.Context) error {
	res, err := lk.locker.rdb.Eval(ctx, releaseScript, []string{constants.LockKey(lk.conversationID)}, lk.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release conversation lock: %w", err)
	}
	if res == 0 {
		lk.locker.logger.WithField("conversation_id", lk.conversationID).Warn("Conversation lock expired before release")
	}
	return nil
}
