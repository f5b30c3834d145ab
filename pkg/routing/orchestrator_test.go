package routing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skill-routing-engine/pkg/catalogue"
	"skill-routing-engine/pkg/dispatch"
	"skill-routing-engine/pkg/holiday"
	"skill-routing-engine/pkg/metrics"
	"skill-routing-engine/pkg/models"
	"skill-routing-engine/pkg/schedule"
)

type fakeClassifier struct {
	result Classification
	err    error
	delay  time.Duration
}

func (c *fakeClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.result, c.err
}

type fakeExecutor struct {
	err      error
	executed []*models.ToolAction
}

func (e *fakeExecutor) Execute(ctx context.Context, action *models.ToolAction) (dispatch.Result, error) {
	e.executed = append(e.executed, action)
	if e.err != nil {
		return dispatch.Result{}, e.err
	}
	return dispatch.Result{Success: true}, nil
}

func loadSnapshot(t *testing.T) *catalogue.Snapshot {
	t.Helper()
	snap, err := catalogue.LoadFile("../../catalogue.yaml")
	require.NoError(t, err)
	return snap
}

func newTestOrchestrator(t *testing.T, snap *catalogue.Snapshot, opts Options) (*Orchestrator, *metrics.Metrics) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	m := metrics.NewMetrics(prometheus.NewRegistry())

	calendar, err := holiday.NewStaticCalendar(snap.Holidays)
	require.NoError(t, err)
	evaluator := schedule.NewEvaluator(calendar, 100*time.Millisecond, logger, m)

	o := NewOrchestrator(evaluator, logger, m, opts)
	o.now = func() time.Time { return time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC) }
	return o, m
}

// newYork returns the UTC instant for a wall-clock time in America/New_York
func newYork(t *testing.T, month time.Month, day, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(2026, month, day, hour, minute, 0, 0, loc).UTC()
}

func TestRoute_UrgentTriageEscalates(t *testing.T) {
	snap := loadSnapshot(t)
	o, m := newTestOrchestrator(t, snap, Options{})

	// Monday 09:15 UTC is 05:15 in New York, inside Sunday's overnight window
	event := models.InboundEvent{
		EventID:        "evt_1",
		ConversationID: "conv_triage",
		Channel:        models.ChannelVoice,
		TimestampUTC:   time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC),
		Confidence:     0.99,
		FreeText:       "I have sharp chest pain",
	}

	out, conv := o.Route(context.Background(), snap, nil, event)

	assert.Equal(t, "triage", out.SelectedSkillID)
	assert.Equal(t, models.StatusEscalated, out.Status)
	assert.Equal(t, "urgent_keyword:chest pain", out.EscalationReason)
	assert.Equal(t, models.StateEscalated, out.FinalState)
	require.NotNil(t, out.InvokedTool)
	assert.Equal(t, models.ToolTransfer, out.InvokedTool.Kind)
	assert.Equal(t, "+1911", out.InvokedTool.Params["target_number"])
	assert.Equal(t, []string{"If this is an emergency, hang up and dial 911."}, out.Disclosures)
	assert.Empty(t, out.MissingRequiredInputs)

	assert.Equal(t, models.StateClosed, conv.ResumeAt)
	assert.False(t, conv.Resumable())
	assert.Equal(t, 1, conv.Evaluations)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RoutingDecisions.WithLabelValues("escalated", "voice")))
}

func TestRoute_MissingInputsThenResume(t *testing.T) {
	snap := loadSnapshot(t)
	executor := &fakeExecutor{}
	o, _ := newTestOrchestrator(t, snap, Options{Executor: executor})
	ctx := context.Background()

	first := models.InboundEvent{
		ConversationID:   "conv_sched",
		Channel:          models.ChannelSMS,
		TimestampUTC:     newYork(t, 10, 19, 10, 0),
		ClassifiedIntent: "scheduling",
		Confidence:       0.9,
		FreeText:         "I need an appointment, my birthday is 1980-04-02",
		ConsentGiven:     true,
		CapturedInputs:   map[string]string{"patient_dob": "1980-04-02"},
	}

	out, conv := o.Route(ctx, snap, nil, first)
	assert.Equal(t, "scheduling", out.SelectedSkillID)
	assert.Equal(t, models.StatusActionRequired, out.Status)
	assert.Equal(t, models.ActionMissingInputs, out.ActionReason)
	assert.Equal(t, []string{"appt_reason"}, out.MissingRequiredInputs)
	assert.False(t, out.Retryable)
	assert.Nil(t, out.InvokedTool)
	assert.Equal(t, "[REDACTED]", out.RedactedInputs["patient_dob"])
	assert.Equal(t, "I need an appointment, my birthday is [REDACTED]", out.RedactedText)
	assert.Equal(t, []string{"Replies are automated."}, out.Disclosures)
	assert.Empty(t, executor.executed)

	assert.Equal(t, "scheduling", conv.SkillID)
	assert.Equal(t, models.StateEscalationChecked, conv.ResumeAt)
	assert.True(t, conv.Resumable())

	// The follow-up carries no intent or consent flag; the conversation has both
	second := models.InboundEvent{
		ConversationID: "conv_sched",
		Channel:        models.ChannelSMS,
		TimestampUTC:   newYork(t, 10, 19, 10, 2),
		Confidence:     0.9,
		FreeText:       "back pain",
		CapturedInputs: map[string]string{"patient_dob": "1980-04-02", "appt_reason": "back pain"},
	}

	out, conv = o.Route(ctx, snap, conv, second)
	assert.Equal(t, "scheduling", out.SelectedSkillID)
	assert.Equal(t, models.StatusResolved, out.Status)
	assert.Equal(t, models.StateToolDispatched, out.FinalState)
	require.NotNil(t, out.InvokedTool)
	assert.Equal(t, models.ToolCalendar, out.InvokedTool.Kind)
	assert.Equal(t, "[REDACTED]", out.InvokedTool.Params["dob"])
	assert.Equal(t, "back pain", out.InvokedTool.Params["appointmentreasonid"])
	assert.Empty(t, out.Disclosures)
	require.Len(t, executor.executed, 1)
	assert.Equal(t, "1980-04-02", executor.executed[0].Params["dob"])

	assert.Equal(t, models.StateClosed, conv.ResumeAt)
	assert.Equal(t, 2, conv.Evaluations)
}

func TestRoute_RedactedValuesNeverPublished(t *testing.T) {
	snap := loadSnapshot(t)
	tests := []struct {
		name     string
		executor *fakeExecutor
		status   models.Status
	}{
		{"resolved", &fakeExecutor{}, models.StatusResolved},
		{"tool failed", &fakeExecutor{err: errors.New("athena unavailable")}, models.StatusActionRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newTestOrchestrator(t, snap, Options{Executor: tt.executor})

			event := models.InboundEvent{
				ConversationID:   "conv_phi",
				Channel:          models.ChannelSMS,
				TimestampUTC:     newYork(t, 10, 19, 10, 0),
				ClassifiedIntent: "scheduling",
				Confidence:       0.9,
				FreeText:         "my dob is 1980-01-02",
				ConsentGiven:     true,
				CapturedInputs:   map[string]string{"patient_dob": "1980-01-02", "appt_reason": "follow-up"},
			}

			out, _ := o.Route(context.Background(), snap, nil, event)
			assert.Equal(t, tt.status, out.Status)
			require.NotNil(t, out.InvokedTool)
			assert.Equal(t, models.ToolCalendar, out.InvokedTool.Kind)

			data, err := json.Marshal(out)
			require.NoError(t, err)
			assert.NotContains(t, string(data), "1980-01-02")
			assert.Contains(t, string(data), `"dob":"[REDACTED]"`)

			require.Len(t, tt.executor.executed, 1)
			assert.Equal(t, "1980-01-02", tt.executor.executed[0].Params["dob"])
		})
	}
}

func TestRoute_ConsentRequiredThenGiven(t *testing.T) {
	snap := loadSnapshot(t)
	o, _ := newTestOrchestrator(t, snap, Options{})
	ctx := context.Background()

	event := models.InboundEvent{
		ConversationID:   "conv_consent",
		Channel:          models.ChannelSMS,
		TimestampUTC:     newYork(t, 10, 19, 10, 0),
		ClassifiedIntent: "scheduling",
		Confidence:       0.9,
		CapturedInputs:   map[string]string{"patient_dob": "1980-04-02", "appt_reason": "checkup"},
	}

	out, conv := o.Route(ctx, snap, nil, event)
	assert.Equal(t, models.StatusActionRequired, out.Status)
	assert.Equal(t, models.ActionConsentRequired, out.ActionReason)
	assert.Nil(t, out.InvokedTool)
	assert.Equal(t, models.StateComplianceChecked, conv.ResumeAt)
	assert.True(t, conv.DisclosuresDelivered)

	event.ConsentGiven = true
	out, conv = o.Route(ctx, snap, conv, event)
	assert.Equal(t, models.StatusResolved, out.Status)
	assert.True(t, conv.ConsentGiven)
	assert.Empty(t, out.Disclosures)
}

func TestRoute_NoEligibleSkill(t *testing.T) {
	snap := loadSnapshot(t)
	o, _ := newTestOrchestrator(t, snap, Options{})

	// Sunday morning: weekday skills are closed and triage only runs overnight
	event := models.InboundEvent{
		ConversationID:   "conv_sunday",
		Channel:          models.ChannelSMS,
		TimestampUTC:     newYork(t, 10, 18, 10, 0),
		ClassifiedIntent: "scheduling",
		Confidence:       0.9,
	}

	out, conv := o.Route(context.Background(), snap, nil, event)
	assert.Empty(t, out.SelectedSkillID)
	assert.Equal(t, models.StatusEscalated, out.Status)
	assert.Equal(t, "no_eligible_skill", out.EscalationReason)
	require.NotNil(t, out.InvokedTool)
	assert.True(t, out.InvokedTool.Fallback)
	assert.Equal(t, models.ToolTransfer, out.InvokedTool.Kind)
	assert.Equal(t, "+15550123456", out.InvokedTool.Params["target_number"])
	assert.Empty(t, conv.SkillID)
}

func TestRoute_HolidaySuppressesSkills(t *testing.T) {
	snap := loadSnapshot(t)
	o, _ := newTestOrchestrator(t, snap, Options{})

	event := models.InboundEvent{
		ConversationID:   "conv_christmas",
		Channel:          models.ChannelSMS,
		TimestampUTC:     newYork(t, 12, 25, 10, 0),
		ClassifiedIntent: "scheduling",
		Confidence:       0.9,
		ConsentGiven:     true,
	}

	out, _ := o.Route(context.Background(), snap, nil, event)
	assert.Equal(t, "no_eligible_skill", out.EscalationReason)
}

func TestRoute_LowConfidenceEscalates(t *testing.T) {
	snap := loadSnapshot(t)
	o, _ := newTestOrchestrator(t, snap, Options{})

	event := models.InboundEvent{
		ConversationID:   "conv_unsure",
		Channel:          models.ChannelSMS,
		TimestampUTC:     newYork(t, 10, 19, 10, 0),
		ClassifiedIntent: "scheduling",
		Confidence:       0.42,
		ConsentGiven:     true,
	}

	out, _ := o.Route(context.Background(), snap, nil, event)
	assert.Equal(t, models.StatusEscalated, out.Status)
	assert.Equal(t, "low_confidence:0.42", out.EscalationReason)
	require.NotNil(t, out.InvokedTool)
	assert.Equal(t, "+15550123456", out.InvokedTool.Params["target_number"])
}

func TestRoute_ClassifierFailureIsRetryable(t *testing.T) {
	snap := loadSnapshot(t)
	cases := []struct {
		name       string
		classifier *fakeClassifier
	}{
		{"error", &fakeClassifier{err: errors.New("model overloaded")}},
		{"timeout", &fakeClassifier{result: Classification{Intent: "faq", Confidence: 1}, delay: 500 * time.Millisecond}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, _ := newTestOrchestrator(t, snap, Options{Classifier: tc.classifier, ClassifierTimeout: 20 * time.Millisecond})

			event := models.InboundEvent{
				ConversationID: "conv_classify",
				Channel:        models.ChannelSMS,
				TimestampUTC:   newYork(t, 10, 19, 10, 0),
				FreeText:       "what time do you open",
			}

			out, conv := o.Route(context.Background(), snap, nil, event)
			assert.Equal(t, models.StatusActionRequired, out.Status)
			assert.Equal(t, models.ActionClassifierUnavailable, out.ActionReason)
			assert.True(t, out.Retryable)
			assert.Equal(t, models.StateReceived, conv.ResumeAt)
			assert.False(t, conv.Resumable())
		})
	}
}

func TestRoute_ClassifierFillsIntent(t *testing.T) {
	snap := loadSnapshot(t)
	classifier := &fakeClassifier{result: Classification{Intent: "faq", Confidence: 0.95}}
	o, _ := newTestOrchestrator(t, snap, Options{Classifier: classifier})

	event := models.InboundEvent{
		ConversationID: "conv_faq",
		Channel:        models.ChannelSMS,
		TimestampUTC:   newYork(t, 10, 19, 10, 0),
		FreeText:       "what time do you open",
		ConsentGiven:   true,
	}

	out, _ := o.Route(context.Background(), snap, nil, event)
	assert.Equal(t, "faq", out.SelectedSkillID)
	assert.Equal(t, models.StatusResolved, out.Status)
	require.NotNil(t, out.InvokedTool)
	// faq has no tools, so its transfer fallback goes to the handoff number
	assert.True(t, out.InvokedTool.Fallback)
	assert.Equal(t, "+15550123456", out.InvokedTool.Params["target_number"])
}

func TestRoute_ToolFailureIsRetryable(t *testing.T) {
	snap := loadSnapshot(t)
	executor := &fakeExecutor{err: errors.New("athena unavailable")}
	o, _ := newTestOrchestrator(t, snap, Options{Executor: executor})

	event := models.InboundEvent{
		ConversationID:   "conv_tool",
		Channel:          models.ChannelSMS,
		TimestampUTC:     newYork(t, 10, 19, 10, 0),
		ClassifiedIntent: "scheduling",
		Confidence:       0.9,
		ConsentGiven:     true,
		CapturedInputs:   map[string]string{"patient_dob": "1980-04-02", "appt_reason": "checkup"},
	}

	out, conv := o.Route(context.Background(), snap, nil, event)
	assert.Equal(t, models.StatusActionRequired, out.Status)
	assert.Equal(t, models.ActionToolFailed, out.ActionReason)
	assert.True(t, out.Retryable)
	require.NotNil(t, out.InvokedTool)
	assert.Equal(t, models.ToolCalendar, out.InvokedTool.Kind)
	assert.Equal(t, models.StateEscalationChecked, conv.ResumeAt)
	assert.Equal(t, "scheduling", conv.SkillID)

	// The retry goes straight back to dispatch
	executor.err = nil
	out, _ = o.Route(context.Background(), snap, conv, event)
	assert.Equal(t, models.StatusResolved, out.Status)
	assert.Len(t, executor.executed, 2)
}

func TestRoute_VanishedSkillRestartsSelection(t *testing.T) {
	snap := loadSnapshot(t)
	o, _ := newTestOrchestrator(t, snap, Options{})

	conv := &models.Conversation{
		ID:       "conv_ghost",
		SkillID:  "retired_skill",
		ResumeAt: models.StateEscalationChecked,
	}
	event := models.InboundEvent{
		ConversationID:   "conv_ghost",
		Channel:          models.ChannelSMS,
		TimestampUTC:     newYork(t, 10, 19, 10, 0),
		ClassifiedIntent: "faq",
		Confidence:       0.9,
		ConsentGiven:     true,
	}

	out, next := o.Route(context.Background(), snap, conv, event)
	assert.Equal(t, "faq", out.SelectedSkillID)
	assert.Equal(t, "faq", next.SkillID)
	// The stored conversation is not modified in place
	assert.Equal(t, "retired_skill", conv.SkillID)
}

func TestRoute_ParallelEvaluations(t *testing.T) {
	snap := loadSnapshot(t)
	o, _ := newTestOrchestrator(t, snap, Options{})

	done := make(chan *models.RoutingOutcome, 20)
	for i := 0; i < 20; i++ {
		go func() {
			out, _ := o.Route(context.Background(), snap, nil, models.InboundEvent{
				ConversationID: "conv_parallel",
				Channel:        models.ChannelVoice,
				TimestampUTC:   time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC),
				FreeText:       "chest pain",
			})
			done <- out
		}()
	}
	for i := 0; i < 20; i++ {
		out := <-done
		assert.Equal(t, "urgent_keyword:chest pain", out.EscalationReason)
	}
}
