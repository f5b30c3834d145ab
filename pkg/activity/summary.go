package activity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"skill-routing-engine/pkg/constants"
)

// Summary is one UTC day of aggregated routing outcomes
type Summary struct {
	Day       string           `json:"day"`
	Total     int64            `json:"total"`
	ByStatus  map[string]int64 `json:"by_status"`
	ByChannel map[string]int64 `json:"by_channel"`
	BySkill   map[string]int64 `json:"by_skill"`
}

// Reader loads aggregated activity
type Reader struct {
	rdb *redis.Client
}

func NewReader(rdb *redis.Client) *Reader {
	return &Reader{rdb: rdb}
}

func (r *Reader) Summary(ctx context.Context, day time.Time) (*Summary, error) {
	fields, err := r.rdb.HGetAll(ctx, constants.ActivityKey(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load activity summary: %w", err)
	}

	s := &Summary{
		Day:       day.UTC().Format("2006-01-02"),
		ByStatus:  make(map[string]int64),
		ByChannel: make(map[string]int64),
		BySkill:   make(map[string]int64),
	}

	for field, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch {
		case field == "total":
			s.Total = n
		case strings.HasPrefix(field, "status:"):
			s.ByStatus[strings.TrimPrefix(field, "status:")] = n
		case strings.HasPrefix(field, "channel:"):
			s.ByChannel[strings.TrimPrefix(field, "channel:")] = n
		case strings.HasPrefix(field, "skill:"):
			s.BySkill[strings.TrimPrefix(field, "skill:")] = n
		}
	}

	return s, nil
}
