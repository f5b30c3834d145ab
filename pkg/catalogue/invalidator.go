package catalogue

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/constants"
)

// Invalidator propagates operator edits to every pod over Redis pub/sub
type Invalidator struct {
	rdb    *redis.Client
	store  *Store
	podID  string
	logger *logrus.Logger
}

func NewInvalidator(rdb *redis.Client, store *Store, podID string, logger *logrus.Logger) *Invalidator {
	return &Invalidator{
		rdb:    rdb,
		store:  store,
		podID:  podID,
		logger: logger,
	}
}

// Broadcast invalidates the local store and tells the other pods to do the same
func (i *Invalidator) Broadcast(ctx context.Context) error {
	i.store.Invalidate()

	if err := i.rdb.Publish(ctx, constants.CatalogueInvalidateChan, i.podID).Err(); err != nil {
		return fmt.Errorf("failed to publish catalogue invalidation: %w", err)
	}
	return nil
}

// Run listens for invalidations until ctx is done
func (i *Invalidator) Run(ctx context.Context) {
	sub := i.rdb.Subscribe(ctx, constants.CatalogueInvalidateChan)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Payload == i.podID {
				continue
			}
			i.logger.WithField("origin_pod", msg.Payload).Debug("Received catalogue invalidation")
			i.store.Invalidate()
		}
	}
}
