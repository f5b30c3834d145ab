package holiday

import (
	"context"
	"sync"
	"time"

	"skill-routing-engine/pkg/catalogue"
)

// SnapshotSource supplies the current catalogue snapshot
type SnapshotSource interface {
	Snapshot() (*catalogue.Snapshot, error)
}

// SnapshotCalendar answers from the holidays listed in the current catalogue,
// following reloads
type SnapshotCalendar struct {
	source SnapshotSource

	mu      sync.Mutex
	version string
	static  *StaticCalendar
}

func NewSnapshotCalendar(source SnapshotSource) *SnapshotCalendar {
	return &SnapshotCalendar{source: source}
}

func (c *SnapshotCalendar) IsHoliday(ctx context.Context, date time.Time, region string) (bool, error) {
	cal, err := c.calendar()
	if err != nil {
		return false, err
	}
	return cal.IsHoliday(ctx, date, region)
}

func (c *SnapshotCalendar) calendar() (*StaticCalendar, error) {
	snap, err := c.source.Snapshot()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.static != nil && c.version == snap.Version {
		return c.static, nil
	}
	static, err := NewStaticCalendar(snap.Holidays)
	if err != nil {
		return nil, err
	}
	c.static, c.version = static, snap.Version
	return static, nil
}
