package catalogue

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skill-routing-engine/pkg/metrics"
)

func setupTestRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   5, // Use test database
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		t.Skipf("Redis not available at %s: %v", addr, err)
	}
	return rdb
}

func countingStore(t *testing.T, loads *int32) *Store {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewStore(func() (*Snapshot, error) {
		atomic.AddInt32(loads, 1)
		return Parse([]byte(minimalCatalogue))
	}, logger, metrics.NewMetrics(prometheus.NewRegistry()))
}

func TestInvalidator_PropagatesAcrossPods(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	var loadsA, loadsB int32
	storeA := countingStore(t, &loadsA)
	storeB := countingStore(t, &loadsB)

	_, err := storeA.Snapshot()
	require.NoError(t, err)
	_, err = storeB.Snapshot()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	podA := NewInvalidator(rdb, storeA, "pod-a", logger)
	podB := NewInvalidator(rdb, storeB, "pod-b", logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go podB.Run(ctx)

	// Keep broadcasting until pod B's subscription is live
	require.Eventually(t, func() bool {
		require.NoError(t, podA.Broadcast(ctx))
		_, err := storeB.Snapshot()
		require.NoError(t, err)
		return atomic.LoadInt32(&loadsB) >= 2
	}, 3*time.Second, 50*time.Millisecond)

	_, err = storeA.Snapshot()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&loadsA), int32(2))
}
