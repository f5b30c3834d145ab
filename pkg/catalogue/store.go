package catalogue

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/metrics"
)

// Loader produces a fresh validated snapshot
type Loader func() (*Snapshot, error)

// Store caches the current snapshot until it is explicitly invalidated. A
// failed reload keeps serving the last good snapshot.
type Store struct {
	load    Loader
	logger  *logrus.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	current *Snapshot
	stale   bool
}

func NewStore(load Loader, logger *logrus.Logger, metrics *metrics.Metrics) *Store {
	return &Store{
		load:    load,
		logger:  logger,
		metrics: metrics,
	}
}

// NewFileStore returns a store that reads the YAML catalogue at path
func NewFileStore(path string, logger *logrus.Logger, metrics *metrics.Metrics) *Store {
	return NewStore(func() (*Snapshot, error) { return LoadFile(path) }, logger, metrics)
}

// Snapshot returns the cached snapshot, loading it first if the cache is
// empty or has been invalidated
func (s *Store) Snapshot() (*Snapshot, error) {
	s.mu.RLock()
	current, stale := s.current, s.stale
	s.mu.RUnlock()

	if current != nil && !stale {
		return current, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have reloaded while we waited
	if s.current != nil && !s.stale {
		return s.current, nil
	}

	snap, err := s.load()
	if err != nil {
		s.metrics.CatalogueReloads.WithLabelValues("error").Inc()
		if s.current != nil {
			s.logger.WithError(err).WithField("version", s.current.Version).Error("Catalogue reload failed, keeping previous snapshot")
			s.stale = false
			return s.current, nil
		}
		return nil, fmt.Errorf("load catalogue: %w", err)
	}

	s.metrics.CatalogueReloads.WithLabelValues("success").Inc()
	s.logger.WithFields(logrus.Fields{
		"version": snap.Version,
		"skills":  len(snap.Skills),
	}).Info("Loaded skill catalogue")

	s.current = snap
	s.stale = false
	return snap, nil
}

// Invalidate marks the cached snapshot stale; the next Snapshot call reloads
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()

	s.logger.Info("Skill catalogue invalidated")
}
