package selector

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/models"
	"skill-routing-engine/pkg/schedule"
)

// ActivityChecker decides whether a schedule is in window
type ActivityChecker interface {
	IsActive(ctx context.Context, s models.Schedule, atUTC time.Time, region string) schedule.Result
}

// Selection is the Selector's answer for one event. SkillID is empty when
// no skill is eligible. Ties lists every candidate that matched, in
// tie-break order, when more than one did.
type Selection struct {
	SkillID        string
	Ties           []string
	UrgentOverride bool
	MatchedKeyword string
	Eligible       []string
	Warnings       []string
}

type Selector struct {
	logger *logrus.Logger
}

func NewSelector(logger *logrus.Logger) *Selector {
	return &Selector{logger: logger}
}

type candidate struct {
	skill   *models.Skill
	minutes int
	keyword string
}

// Select filters skills by enabled flag, channel and schedule, then picks one.
// An urgent keyword match on any eligible skill overrides the classified
// intent. Ties go to the narrower weekly window, then the smaller id.
func (s *Selector) Select(ctx context.Context, skills []models.Skill, event models.InboundEvent, region string, checker ActivityChecker) Selection {
	var sel Selection
	var urgent, intent []candidate

	for i := range skills {
		skill := &skills[i]
		if !skill.Enabled || !skill.Channels.Supports(event.Channel) {
			continue
		}

		result := checker.IsActive(ctx, skill.Schedule, event.TimestampUTC, region)
		if result.Warning != "" {
			sel.Warnings = append(sel.Warnings, skill.ID+":"+result.Warning)
		}
		if !result.Active {
			continue
		}
		sel.Eligible = append(sel.Eligible, skill.ID)

		c := candidate{skill: skill, minutes: schedule.WeeklyMinutes(skill.Schedule)}
		if kw, ok := skill.MatchUrgentKeyword(event.FreeText); ok {
			c.keyword = kw
			urgent = append(urgent, c)
		}
		if skill.ID == event.ClassifiedIntent {
			intent = append(intent, c)
		}
	}

	pool := intent
	if len(urgent) > 0 {
		pool = urgent
		sel.UrgentOverride = true
	}
	if len(pool) == 0 {
		s.logger.WithFields(logrus.Fields{
			"intent":   event.ClassifiedIntent,
			"channel":  event.Channel,
			"eligible": len(sel.Eligible),
		}).Debug("No skill matched the event")
		return sel
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].minutes != pool[j].minutes {
			return pool[i].minutes < pool[j].minutes
		}
		return pool[i].skill.ID < pool[j].skill.ID
	})

	sel.SkillID = pool[0].skill.ID
	sel.MatchedKeyword = pool[0].keyword
	if len(pool) > 1 {
		for _, c := range pool {
			sel.Ties = append(sel.Ties, c.skill.ID)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"skill_id":        sel.SkillID,
		"urgent_override": sel.UrgentOverride,
		"candidates":      len(pool),
	}).Debug("Selected skill")

	return sel
}
