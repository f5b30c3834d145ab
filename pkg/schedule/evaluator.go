package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/constants"
	"skill-routing-engine/pkg/metrics"
	"skill-routing-engine/pkg/models"
)

// Calendar answers whether a local calendar date is a holiday in a region
type Calendar interface {
	IsHoliday(ctx context.Context, date time.Time, region string) (bool, error)
}

// Result is the outcome of one activity check. Warning is set when the
// holiday lookup failed and the check failed open.
type Result struct {
	Active  bool
	Holiday bool
	Warning string
}

type Evaluator struct {
	calendar Calendar
	timeout  time.Duration
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

// NewEvaluator builds a schedule evaluator. calendar may be nil, in which case
// holiday suppression never applies.
func NewEvaluator(calendar Calendar, timeout time.Duration, logger *logrus.Logger, metrics *metrics.Metrics) *Evaluator {
	if timeout <= 0 {
		timeout = constants.MillisecondsToDuration(constants.DefaultHolidayTimeoutMS)
	}
	return &Evaluator{
		calendar: calendar,
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
	}
}

// Session returns a checker scoped to one evaluation. Holiday answers are
// memoized per (date, region) so a failing calendar costs one timeout per
// event rather than one per skill.
func (e *Evaluator) Session() *Session {
	return &Session{evaluator: e, memo: make(map[string]holidayAnswer)}
}

// IsActive decides whether s is in window at atUTC
func (e *Evaluator) IsActive(ctx context.Context, s models.Schedule, atUTC time.Time, region string) Result {
	return e.Session().IsActive(ctx, s, atUTC, region)
}

type holidayAnswer struct {
	holiday bool
	err     error
}

type Session struct {
	evaluator *Evaluator
	memo      map[string]holidayAnswer
}

func (s *Session) IsActive(ctx context.Context, sched models.Schedule, atUTC time.Time, region string) Result {
	if !sched.Enabled {
		return Result{}
	}

	w, err := Compile(sched)
	if err != nil {
		// Validated catalogues never get here
		s.evaluator.logger.WithError(err).Warn("Skipping schedule that failed to compile")
		return Result{Warning: fmt.Sprintf("invalid_schedule:%v", err)}
	}

	if !w.Contains(atUTC) {
		return Result{}
	}

	if !sched.Holidays || s.evaluator.calendar == nil {
		return Result{Active: true}
	}

	date := w.OwningDate(atUTC)

	holiday, err := s.lookup(ctx, date, region)
	if err != nil {
		s.evaluator.metrics.HolidayLookupFailures.Inc()
		s.evaluator.logger.WithError(err).WithFields(logrus.Fields{
			"date":   date.Format("2006-01-02"),
			"region": region,
		}).Warn("Holiday lookup failed, treating date as non-holiday")
		return Result{Active: true, Warning: "holiday_lookup_failed"}
	}

	if holiday {
		return Result{Holiday: true}
	}
	return Result{Active: true}
}

func (s *Session) lookup(ctx context.Context, date time.Time, region string) (bool, error) {
	key := region + "|" + date.Format("2006-01-02")
	if answer, ok := s.memo[key]; ok {
		return answer.holiday, answer.err
	}

	start := time.Now()
	lookupCtx, cancel := context.WithTimeout(ctx, s.evaluator.timeout)
	defer cancel()

	// The calendar may not honor ctx; the select keeps the bound regardless
	replies := make(chan holidayAnswer, 1)
	go func() {
		holiday, err := s.evaluator.calendar.IsHoliday(lookupCtx, date, region)
		replies <- holidayAnswer{holiday: holiday, err: err}
	}()

	var answer holidayAnswer
	select {
	case answer = <-replies:
	case <-lookupCtx.Done():
		answer.err = fmt.Errorf("holiday lookup: %w", lookupCtx.Err())
	}
	s.evaluator.metrics.ExternalCallDuration.WithLabelValues("holiday_lookup").Observe(time.Since(start).Seconds())

	s.memo[key] = answer
	return answer.holiday, answer.err
}
