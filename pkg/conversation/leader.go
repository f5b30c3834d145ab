package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/constants"
	"skill-routing-engine/pkg/metrics"
)

const renewScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("EXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// LeaderElection elects one pod to run cluster-wide housekeeping such as the
// stale conversation sweep
type LeaderElection struct {
	rdb      *redis.Client
	podID    string
	ttl      time.Duration
	interval time.Duration
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	isLeader bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewLeaderElection(rdb *redis.Client, podID string, ttl time.Duration, logger *logrus.Logger, metrics *metrics.Metrics) *LeaderElection {
	if ttl <= 0 {
		ttl = constants.SecondsToDuration(constants.DefaultLeaderElectionTTLSeconds)
	}
	interval := constants.SecondsToDuration(constants.DefaultLeaderElectionIntervalSeconds)
	if interval >= ttl {
		interval = ttl / 2
	}
	return &LeaderElection{
		rdb:      rdb,
		podID:    podID,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
		stopCh:   make(chan struct{}),
	}
}

func (le *LeaderElection) Start(ctx context.Context) {
	le.logger.Info("Starting leader election process")

	// Try to become leader immediately
	le.tryBecomeLeader(ctx)
	go le.leaderElectionLoop(ctx)
}

func (le *LeaderElection) Stop() {
	le.stopOnce.Do(func() {
		close(le.stopCh)
		if le.leader() {
			le.resignLeadership(context.Background())
		}
	})
}

// IsLeader verifies leadership against Redis
func (le *LeaderElection) IsLeader(ctx context.Context) bool {
	currentLeader, err := le.rdb.Get(ctx, constants.LeaderElectionKey).Result()
	if err != nil {
		le.setLeader(false)
		return false
	}

	isActualLeader := currentLeader == le.podID
	if le.leader() != isActualLeader {
		le.setLeader(isActualLeader)
		if isActualLeader {
			le.logger.Info("Confirmed leadership from Redis")
		} else {
			le.logger.Info("Leadership lost - not in Redis")
		}
	}
	return isActualLeader
}

func (le *LeaderElection) leader() bool {
	le.mu.Lock()
	defer le.mu.Unlock()
	return le.isLeader
}

func (le *LeaderElection) setLeader(v bool) {
	le.mu.Lock()
	defer le.mu.Unlock()
	le.isLeader = v
}

func (le *LeaderElection) leaderElectionLoop(ctx context.Context) {
	ticker := time.NewTicker(le.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-le.stopCh:
			return
		case <-ticker.C:
			le.tryBecomeLeader(ctx)
		}
	}
}

func (le *LeaderElection) tryBecomeLeader(ctx context.Context) {
	start := time.Now()
	defer func() {
		le.metrics.LeaderElectionDuration.Observe(time.Since(start).Seconds())
	}()

	acquired, err := le.rdb.SetNX(ctx, constants.LeaderElectionKey, le.podID, le.ttl).Result()
	if err != nil {
		le.logger.WithError(err).Error("Failed to attempt leader election")
		return
	}

	if acquired {
		if !le.leader() {
			le.logger.WithField("pod_id", le.podID).Info("Became leader")
			le.metrics.LeaderChanges.Inc()
			le.setLeader(true)
		}
		return
	}

	// Someone holds the key; if it is us, extend the lease
	if le.leader() {
		le.renewLeadership(ctx)
	}
}

func (le *LeaderElection) renewLeadership(ctx context.Context) {
	res, err := le.rdb.Eval(ctx, renewScript, []string{constants.LeaderElectionKey}, le.podID, int(le.ttl.Seconds())).Int64()
	if err != nil {
		le.logger.WithError(err).Error("Failed to renew leadership")
		le.setLeader(false)
		return
	}

	if res == 0 {
		le.logger.Warn("Leadership renewal failed - no longer leader")
		le.setLeader(false)
	}
}

func (le *LeaderElection) resignLeadership(ctx context.Context) {
	err := le.rdb.Eval(ctx, releaseScript, []string{constants.LeaderElectionKey}, le.podID).Err()
	if err != nil {
		le.logger.WithError(err).Error("Failed to resign leadership")
	} else {
		le.logger.Info("Resigned leadership")
	}
	le.setLeader(false)
}
