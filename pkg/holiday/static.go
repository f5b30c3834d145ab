package holiday

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// StaticCalendar answers from a fixed set of dates per region, as configured
// in the catalogue file
type StaticCalendar struct {
	dates map[string]map[string]struct{}
}

// NewStaticCalendar builds a calendar from region -> list of YYYY-MM-DD dates
func NewStaticCalendar(byRegion map[string][]string) (*StaticCalendar, error) {
	c := &StaticCalendar{dates: make(map[string]map[string]struct{}, len(byRegion))}
	for region, dates := range byRegion {
		set := make(map[string]struct{}, len(dates))
		for _, d := range dates {
			if _, err := time.Parse(dateLayout, d); err != nil {
				return nil, fmt.Errorf("holiday %q for region %s: %w", d, region, err)
			}
			set[d] = struct{}{}
		}
		c.dates[normalizeRegion(region)] = set
	}
	return c, nil
}

func (c *StaticCalendar) IsHoliday(ctx context.Context, date time.Time, region string) (bool, error) {
	set, ok := c.dates[normalizeRegion(region)]
	if !ok {
		return false, nil
	}
	_, holiday := set[date.Format(dateLayout)]
	return holiday, nil
}

func normalizeRegion(region string) string {
	return strings.ToUpper(strings.TrimSpace(region))
}
