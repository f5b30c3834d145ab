package selector

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skill-routing-engine/pkg/metrics"
	"skill-routing-engine/pkg/models"
	"skill-routing-engine/pkg/schedule"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newChecker() *schedule.Session {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return schedule.NewEvaluator(nil, 50*time.Millisecond, quietLogger(), m).Session()
}

func weekdays(start, end string) models.Schedule {
	return models.Schedule{
		Enabled:   true,
		Timezone:  "America/New_York",
		Days:      []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
		StartTime: start,
		EndTime:   end,
	}
}

func allDay() models.Schedule {
	return models.Schedule{
		Enabled:   true,
		Timezone:  "America/New_York",
		Days:      []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
		StartTime: "00:00",
		EndTime:   "00:00",
	}
}

func skill(id string, sched models.Schedule) models.Skill {
	return models.Skill{
		ID:       id,
		Enabled:  true,
		Channels: models.Channels{SMS: true, Voice: true},
		Schedule: sched,
	}
}

// mondayMorning is 10:00 New York time on Monday 2026-10-19
func mondayMorning(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(2026, 10, 19, 10, 0, 0, 0, loc).UTC()
}

func TestSelect_ByClassifiedIntent(t *testing.T) {
	skills := []models.Skill{
		skill("faq", weekdays("09:00", "17:00")),
		skill("scheduling", weekdays("09:00", "17:00")),
	}
	event := models.InboundEvent{
		Channel:          models.ChannelSMS,
		TimestampUTC:     mondayMorning(t),
		ClassifiedIntent: "scheduling",
	}

	sel := NewSelector(quietLogger()).Select(context.Background(), skills, event, "US", newChecker())
	assert.Equal(t, "scheduling", sel.SkillID)
	assert.False(t, sel.UrgentOverride)
	assert.Empty(t, sel.Ties)
	assert.ElementsMatch(t, []string{"faq", "scheduling"}, sel.Eligible)
}

func TestSelect_EligibilityFilters(t *testing.T) {
	disabled := skill("scheduling", weekdays("09:00", "17:00"))
	disabled.Enabled = false

	voiceOnly := skill("refills", weekdays("09:00", "17:00"))
	voiceOnly.Channels = models.Channels{Voice: true}

	closed := skill("billing", weekdays("18:00", "20:00"))

	cases := []struct {
		name   string
		skills []models.Skill
		intent string
	}{
		{"disabled skill", []models.Skill{disabled}, "scheduling"},
		{"wrong channel", []models.Skill{voiceOnly}, "refills"},
		{"outside schedule", []models.Skill{closed}, "billing"},
		{"unknown intent", []models.Skill{skill("faq", weekdays("09:00", "17:00"))}, "weather"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := models.InboundEvent{
				Channel:          models.ChannelSMS,
				TimestampUTC:     mondayMorning(t),
				ClassifiedIntent: tc.intent,
			}
			sel := NewSelector(quietLogger()).Select(context.Background(), tc.skills, event, "US", newChecker())
			assert.Empty(t, sel.SkillID)
		})
	}
}

func TestSelect_UrgentKeywordOverridesIntent(t *testing.T) {
	triage := skill("triage", allDay())
	triage.Logic.UrgentKeywords = []string{"chest pain", "bleeding"}

	skills := []models.Skill{skill("scheduling", weekdays("09:00", "17:00")), triage}
	event := models.InboundEvent{
		Channel:          models.ChannelVoice,
		TimestampUTC:     mondayMorning(t),
		ClassifiedIntent: "scheduling",
		Confidence:       0.99,
		FreeText:         "I need to move my appointment, I have Chest Pain",
	}

	sel := NewSelector(quietLogger()).Select(context.Background(), skills, event, "US", newChecker())
	assert.Equal(t, "triage", sel.SkillID)
	assert.True(t, sel.UrgentOverride)
	assert.Equal(t, "chest pain", sel.MatchedKeyword)
}

func TestSelect_TieBreakPrefersNarrowerWindow(t *testing.T) {
	wide := skill("after_hours", allDay())
	wide.Logic.UrgentKeywords = []string{"emergency"}
	narrow := skill("office", weekdays("09:00", "17:00"))
	narrow.Logic.UrgentKeywords = []string{"emergency"}

	event := models.InboundEvent{
		Channel:      models.ChannelVoice,
		TimestampUTC: mondayMorning(t),
		FreeText:     "this is an emergency",
	}

	sel := NewSelector(quietLogger()).Select(context.Background(), []models.Skill{wide, narrow}, event, "US", newChecker())
	assert.Equal(t, "office", sel.SkillID)
	assert.Equal(t, []string{"office", "after_hours"}, sel.Ties)
}

func TestSelect_TieBreakFallsBackToID(t *testing.T) {
	b := skill("beta", weekdays("09:00", "17:00"))
	b.Logic.UrgentKeywords = []string{"fraud"}
	a := skill("alpha", weekdays("09:00", "17:00"))
	a.Logic.UrgentKeywords = []string{"fraud"}

	event := models.InboundEvent{
		Channel:      models.ChannelSMS,
		TimestampUTC: mondayMorning(t),
		FreeText:     "I think there is fraud on my card",
	}

	sel := NewSelector(quietLogger()).Select(context.Background(), []models.Skill{b, a}, event, "US", newChecker())
	assert.Equal(t, "alpha", sel.SkillID)
	assert.Equal(t, []string{"alpha", "beta"}, sel.Ties)
}

func TestSelect_UrgentKeywordOnIneligibleSkillIgnored(t *testing.T) {
	triage := skill("triage", weekdays("18:00", "20:00"))
	triage.Logic.UrgentKeywords = []string{"chest pain"}

	skills := []models.Skill{skill("scheduling", weekdays("09:00", "17:00")), triage}
	event := models.InboundEvent{
		Channel:          models.ChannelSMS,
		TimestampUTC:     mondayMorning(t),
		ClassifiedIntent: "scheduling",
		FreeText:         "chest pain",
	}

	sel := NewSelector(quietLogger()).Select(context.Background(), skills, event, "US", newChecker())
	assert.Equal(t, "scheduling", sel.SkillID)
	assert.False(t, sel.UrgentOverride)
}
