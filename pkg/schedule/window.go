package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"skill-routing-engine/pkg/models"
)

const minutesPerDay = 24 * 60

var weekdaySymbols = map[string]time.Weekday{
	"Sun": time.Sunday,
	"Mon": time.Monday,
	"Tue": time.Tuesday,
	"Wed": time.Wednesday,
	"Thu": time.Thursday,
	"Fri": time.Friday,
	"Sat": time.Saturday,
}

// ParseWeekday maps a three-letter weekday symbol (Mon..Sun) to time.Weekday
func ParseWeekday(symbol string) (time.Weekday, error) {
	day, ok := weekdaySymbols[symbol]
	if !ok {
		return 0, fmt.Errorf("unrecognized weekday %q", symbol)
	}
	return day, nil
}

// ParseClock parses HH:mm into minutes since midnight
func ParseClock(value string) (int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:mm", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hours*60 + minutes, nil
}

// Window is a compiled schedule: resolved location, included weekdays and
// the [start, end) bounds in minutes since local midnight.
type Window struct {
	loc   *time.Location
	days  [7]bool
	start int
	end   int
}

// Compile validates a schedule and resolves its timezone. It does not look at
// the enabled flag.
func Compile(s models.Schedule) (Window, error) {
	var w Window

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil || s.Timezone == "" {
		return w, fmt.Errorf("invalid timezone %q", s.Timezone)
	}
	w.loc = loc

	for _, symbol := range s.Days {
		day, err := ParseWeekday(symbol)
		if err != nil {
			return w, err
		}
		w.days[day] = true
	}

	if w.start, err = ParseClock(s.StartTime); err != nil {
		return w, fmt.Errorf("startTime: %w", err)
	}
	if w.end, err = ParseClock(s.EndTime); err != nil {
		return w, fmt.Errorf("endTime: %w", err)
	}

	return w, nil
}

// Wraps reports whether the window runs past local midnight
func (w Window) Wraps() bool {
	return w.end <= w.start
}

// Location returns the schedule's timezone
func (w Window) Location() *time.Location {
	return w.loc
}

// Contains reports whether at falls inside the window. For an overnight
// window the part after midnight belongs to the previous local day, so it
// only counts when that day is included.
func (w Window) Contains(at time.Time) bool {
	local := at.In(w.loc)
	minute := local.Hour()*60 + local.Minute()
	today := local.Weekday()
	yesterday := (today + 6) % 7

	if !w.Wraps() {
		return w.days[today] && minute >= w.start && minute < w.end
	}

	if w.days[today] && minute >= w.start {
		return true
	}
	return w.days[yesterday] && minute < w.end
}

// OwningDate is the local midnight of the day whose window covers at. The
// after-midnight part of an overnight window belongs to the previous day.
func (w Window) OwningDate(at time.Time) time.Time {
	local := at.In(w.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.loc)
	if w.Wraps() && local.Hour()*60+local.Minute() < w.end {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// WeeklyMinutes is the number of active minutes per week
func (w Window) WeeklyMinutes() int {
	perDay := w.end - w.start
	if w.Wraps() {
		perDay = minutesPerDay - w.start + w.end
	}

	days := 0
	for _, included := range w.days {
		if included {
			days++
		}
	}
	return perDay * days
}

// InWindow is the pure schedule check with no holiday handling. A disabled
// schedule is never in window.
func InWindow(s models.Schedule, atUTC time.Time) (bool, error) {
	if !s.Enabled {
		return false, nil
	}
	w, err := Compile(s)
	if err != nil {
		return false, err
	}
	return w.Contains(atUTC), nil
}

// WeeklyMinutes returns the active minutes per week of s, or zero when the
// schedule is disabled or invalid
func WeeklyMinutes(s models.Schedule) int {
	if !s.Enabled {
		return 0
	}
	w, err := Compile(s)
	if err != nil {
		return 0
	}
	return w.WeeklyMinutes()
}
