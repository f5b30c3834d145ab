package outcome

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/metrics"
	"skill-routing-engine/pkg/models"
)

// Publisher hands a routing outcome to a downstream sink
type Publisher interface {
	Publish(ctx context.Context, outcome *models.RoutingOutcome) error
	Name() string
	Close() error
}

// MultiPublisher fans an outcome out to every configured sink. A failing
// sink does not stop the others.
type MultiPublisher struct {
	publishers []Publisher
	logger     *logrus.Logger
	metrics    *metrics.Metrics
}

func NewMultiPublisher(logger *logrus.Logger, metrics *metrics.Metrics, publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{
		publishers: publishers,
		logger:     logger,
		metrics:    metrics,
	}
}

func (m *MultiPublisher) Name() string {
	return "multi"
}

func (m *MultiPublisher) Publish(ctx context.Context, outcome *models.RoutingOutcome) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, outcome); err != nil {
			m.metrics.OutcomePublishFailures.WithLabelValues(p.Name()).Inc()
			m.logger.WithError(err).WithFields(logrus.Fields{
				"sink":            p.Name(),
				"outcome_id":      outcome.OutcomeID,
				"conversation_id": outcome.ConversationID,
			}).Error("Failed to publish routing outcome")
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
