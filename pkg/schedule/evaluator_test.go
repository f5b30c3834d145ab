package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"skill-routing-engine/pkg/metrics"
)

type stubCalendar struct {
	holiday bool
	err     error
	delay   time.Duration
	calls   int32
}

func (c *stubCalendar) IsHoliday(ctx context.Context, date time.Time, region string) (bool, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.holiday, c.err
}

// datedCalendar reports the listed local dates as holidays
type datedCalendar struct {
	dates map[string]bool
	asked []string
}

func (c *datedCalendar) IsHoliday(ctx context.Context, date time.Time, region string) (bool, error) {
	day := date.Format("2006-01-02")
	c.asked = append(c.asked, day)
	return c.dates[day], nil
}

func newTestEvaluator(calendar Calendar, timeout time.Duration) (*Evaluator, *metrics.Metrics) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return NewEvaluator(calendar, timeout, logger, m), m
}

func TestEvaluator_HolidaySuppressesWindow(t *testing.T) {
	calendar := &stubCalendar{holiday: true}
	evaluator, _ := newTestEvaluator(calendar, 100*time.Millisecond)

	sched := businessHours()
	sched.Holidays = true

	// Christmas 2026 falls on a Friday
	result := evaluator.IsActive(context.Background(), sched, newYork(t, 2026, 12, 25, 10, 0), "US")
	assert.False(t, result.Active)
	assert.True(t, result.Holiday)
	assert.Empty(t, result.Warning)
}

func TestEvaluator_HolidayFlagOffIgnoresCalendar(t *testing.T) {
	calendar := &stubCalendar{holiday: true}
	evaluator, _ := newTestEvaluator(calendar, 100*time.Millisecond)

	result := evaluator.IsActive(context.Background(), businessHours(), newYork(t, 2026, 12, 25, 10, 0), "US")
	assert.True(t, result.Active)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calendar.calls))
}

func TestEvaluator_LookupFailureFailsOpen(t *testing.T) {
	calendar := &stubCalendar{err: errors.New("calendar service unavailable")}
	evaluator, m := newTestEvaluator(calendar, 100*time.Millisecond)

	sched := businessHours()
	sched.Holidays = true

	result := evaluator.IsActive(context.Background(), sched, newYork(t, 2026, 10, 19, 10, 0), "US")
	assert.True(t, result.Active)
	assert.Equal(t, "holiday_lookup_failed", result.Warning)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HolidayLookupFailures))
}

func TestEvaluator_LookupTimeoutFailsOpen(t *testing.T) {
	calendar := &stubCalendar{holiday: true, delay: 500 * time.Millisecond}
	evaluator, _ := newTestEvaluator(calendar, 20*time.Millisecond)

	sched := businessHours()
	sched.Holidays = true

	start := time.Now()
	result := evaluator.IsActive(context.Background(), sched, newYork(t, 2026, 10, 19, 10, 0), "US")
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.True(t, result.Active)
	assert.NotEmpty(t, result.Warning)
}

func TestEvaluator_SkipsLookupOutsideWindow(t *testing.T) {
	calendar := &stubCalendar{}
	evaluator, _ := newTestEvaluator(calendar, 100*time.Millisecond)

	sched := businessHours()
	sched.Holidays = true

	result := evaluator.IsActive(context.Background(), sched, newYork(t, 2026, 10, 19, 20, 0), "US")
	assert.False(t, result.Active)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calendar.calls))
}

func TestSession_MemoizesLookups(t *testing.T) {
	calendar := &stubCalendar{}
	evaluator, _ := newTestEvaluator(calendar, 100*time.Millisecond)

	sched := businessHours()
	sched.Holidays = true
	at := newYork(t, 2026, 10, 19, 10, 0)

	session := evaluator.Session()
	assert.True(t, session.IsActive(context.Background(), sched, at, "US").Active)
	assert.True(t, session.IsActive(context.Background(), sched, at, "US").Active)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calendar.calls))
}

func TestEvaluator_OvernightTailUsesOpeningDayForHolidays(t *testing.T) {
	calendar := &datedCalendar{dates: map[string]bool{"2026-12-25": true}}
	evaluator, _ := newTestEvaluator(calendar, 100*time.Millisecond)

	sched := overnight(allDays)
	sched.Holidays = true

	// 05:00 on Dec 25 belongs to the window that opened Dec 24
	result := evaluator.IsActive(context.Background(), sched, newYork(t, 2026, 12, 25, 5, 0), "US")
	assert.True(t, result.Active)
	assert.False(t, result.Holiday)

	// 19:00 on Dec 25 opens the holiday's own window
	result = evaluator.IsActive(context.Background(), sched, newYork(t, 2026, 12, 25, 19, 0), "US")
	assert.False(t, result.Active)
	assert.True(t, result.Holiday)

	// 05:00 on Dec 26 is still the tail of the Dec 25 window
	result = evaluator.IsActive(context.Background(), sched, newYork(t, 2026, 12, 26, 5, 0), "US")
	assert.False(t, result.Active)
	assert.True(t, result.Holiday)

	assert.Equal(t, []string{"2026-12-24", "2026-12-25", "2026-12-25"}, calendar.asked)
}
