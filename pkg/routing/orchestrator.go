package routing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/catalogue"
	"skill-routing-engine/pkg/compliance"
	"skill-routing-engine/pkg/constants"
	"skill-routing-engine/pkg/dispatch"
	"skill-routing-engine/pkg/escalation"
	"skill-routing-engine/pkg/metrics"
	"skill-routing-engine/pkg/models"
	"skill-routing-engine/pkg/schedule"
	"skill-routing-engine/pkg/selector"
)

// ToolExecutor performs a dispatched action. nil means decisions are returned
// without being executed.
type ToolExecutor interface {
	Execute(ctx context.Context, action *models.ToolAction) (dispatch.Result, error)
}

type Options struct {
	Classifier        Classifier
	ClassifierTimeout time.Duration
	Executor          ToolExecutor
}

// Orchestrator runs one inbound event through schedule filtering, skill
// selection, compliance, escalation and dispatch, and assembles the outcome.
// It holds no per-conversation state; callers pass the conversation in and
// persist the one returned.
type Orchestrator struct {
	evaluator         *schedule.Evaluator
	selector          *selector.Selector
	gate              *compliance.Gate
	classifier        Classifier
	classifierTimeout time.Duration
	executor          ToolExecutor
	logger            *logrus.Logger
	metrics           *metrics.Metrics
	now               func() time.Time
}

func NewOrchestrator(evaluator *schedule.Evaluator, logger *logrus.Logger, metrics *metrics.Metrics, opts Options) *Orchestrator {
	timeout := opts.ClassifierTimeout
	if timeout <= 0 {
		timeout = constants.MillisecondsToDuration(constants.DefaultClassifierTimeoutMS)
	}
	return &Orchestrator{
		evaluator:         evaluator,
		selector:          selector.NewSelector(logger),
		gate:              compliance.NewGate(logger),
		classifier:        opts.Classifier,
		classifierTimeout: timeout,
		executor:          opts.Executor,
		logger:            logger,
		metrics:           metrics,
		now:               time.Now,
	}
}

// evaluation is the working state of one Route call
type evaluation struct {
	snap    *catalogue.Snapshot
	event   models.InboundEvent
	conv    models.Conversation
	outcome *models.RoutingOutcome
	skill   *models.Skill
	state   models.State
	log     *logrus.Entry
}

func (ev *evaluation) enter(state models.State) {
	ev.state = state
	ev.log.WithField("state", state).Debug("Routing state entered")
}

// Route evaluates event against snap. conv is the conversation as stored
// before this event; the returned conversation is what must be stored after.
func (o *Orchestrator) Route(ctx context.Context, snap *catalogue.Snapshot, conv *models.Conversation, event models.InboundEvent) (*models.RoutingOutcome, *models.Conversation) {
	start := time.Now()
	defer func() {
		o.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	if conv == nil {
		conv = models.NewConversation(event.ConversationID)
	}

	ev := &evaluation{
		snap:  snap,
		event: event,
		conv:  *conv,
		outcome: &models.RoutingOutcome{
			OutcomeID:             uuid.New().String(),
			ConversationID:        event.ConversationID,
			EventID:               event.EventID,
			Channel:               event.Channel,
			MissingRequiredInputs: []string{},
		},
		log: o.logger.WithFields(logrus.Fields{
			"conversation_id": event.ConversationID,
			"event_id":        event.EventID,
		}),
	}
	ev.conv.Evaluations++
	ev.enter(models.StateReceived)

	o.run(ctx, ev)
	ev.enter(models.StateClosed)

	ev.outcome.DecidedAt = o.now().UTC()
	ev.conv.LastStatus = ev.outcome.Status
	ev.conv.UpdatedAt = ev.outcome.DecidedAt
	if ev.outcome.Status != models.StatusActionRequired {
		ev.conv.ResumeAt = models.StateClosed
	}

	o.metrics.RoutingDecisions.WithLabelValues(string(ev.outcome.Status), string(event.Channel)).Inc()
	ev.log.WithFields(logrus.Fields{
		"skill_id":          ev.outcome.SelectedSkillID,
		"status":            ev.outcome.Status,
		"final_state":       ev.outcome.FinalState,
		"escalation_reason": ev.outcome.EscalationReason,
		"action_reason":     ev.outcome.ActionReason,
	}).Info("Routing decision")

	return ev.outcome, &ev.conv
}

func (o *Orchestrator) run(ctx context.Context, ev *evaluation) {
	if resumeAt, ok := o.resume(ev); ok {
		o.fromCompliance(ctx, ev, resumeAt == models.StateEscalationChecked)
		return
	}

	if ev.event.ClassifiedIntent == "" && o.classifier != nil && ev.event.FreeText != "" {
		if err := o.classify(ctx, ev); err != nil {
			ev.log.WithError(err).Warn("Classifier unavailable")
			ev.conv.SkillID = ""
			o.actionRequired(ev, models.ActionClassifierUnavailable, true, models.StateReceived)
			return
		}
	}
	if ev.event.ClassifiedIntent == "" && !ev.event.HasSignal(constants.SignalUnknownIntent) {
		ev.event.Signals = append(append([]string(nil), ev.event.Signals...), constants.SignalUnknownIntent)
	}

	sel := o.selector.Select(ctx, ev.snap.Skills, ev.event, ev.snap.HolidayRegion, o.evaluator.Session())
	ev.enter(models.StateScheduleFiltered)
	ev.outcome.Warnings = append(ev.outcome.Warnings, sel.Warnings...)
	ev.outcome.Ties = sel.Ties

	if sel.SkillID == "" {
		ev.conv.SkillID = ""
		ev.outcome.Status = models.StatusEscalated
		ev.outcome.EscalationReason = constants.ReasonNoEligibleSkill
		ev.outcome.InvokedTool = dispatch.SystemHandoff(ev.snap.Handoff)
		ev.outcome.FinalState = models.StateEscalated
		ev.enter(models.StateEscalated)
		return
	}

	ev.skill, _ = ev.snap.Skill(sel.SkillID)
	ev.conv.SkillID = sel.SkillID
	ev.outcome.SelectedSkillID = sel.SkillID
	ev.enter(models.StateSkillSelected)

	o.fromCompliance(ctx, ev, false)
}

// resume reports where a conversation with a fixed skill re-enters. A skill
// that has since been removed or disabled sends the event back through
// selection.
func (o *Orchestrator) resume(ev *evaluation) (models.State, bool) {
	if !ev.conv.Resumable() {
		return "", false
	}

	skill, ok := ev.snap.Skill(ev.conv.SkillID)
	if !ok || !skill.Enabled || !skill.Channels.Supports(ev.event.Channel) {
		ev.log.WithField("skill_id", ev.conv.SkillID).Info("Fixed skill no longer applies, routing from the start")
		ev.conv.SkillID = ""
		return "", false
	}

	ev.skill = skill
	ev.outcome.SelectedSkillID = skill.ID
	ev.log.WithFields(logrus.Fields{
		"skill_id":  skill.ID,
		"resume_at": ev.conv.ResumeAt,
	}).Debug("Resuming conversation")
	return ev.conv.ResumeAt, true
}

// fromCompliance runs compliance, escalation and dispatch for the fixed
// skill. consentSettled skips the consent requirement when the conversation
// already passed it; redaction and disclosures still apply.
func (o *Orchestrator) fromCompliance(ctx context.Context, ev *evaluation, consentSettled bool) {
	skill := ev.skill

	if ev.event.ConsentGiven {
		ev.conv.ConsentGiven = true
	}
	decision := o.gate.Authorize(skill, ev.event, ev.conv.ConsentGiven || consentSettled)
	ev.outcome.RedactedInputs = decision.RedactedInputs
	ev.outcome.RedactedText = decision.RedactedText
	if !ev.conv.DisclosuresDelivered && len(decision.RequiredDisclosures) > 0 {
		ev.outcome.Disclosures = decision.RequiredDisclosures
		ev.conv.DisclosuresDelivered = true
	}

	// Consent gates data collection, not an emergency handoff
	_, urgent := skill.MatchUrgentKeyword(ev.event.FreeText)
	if !decision.Allowed && !urgent {
		o.actionRequired(ev, models.ActionConsentRequired, false, models.StateComplianceChecked)
		return
	}
	ev.enter(models.StateComplianceChecked)

	verdict := escalation.Evaluate(skill, ev.event)
	ev.enter(models.StateEscalationChecked)
	if verdict.Escalate {
		ev.outcome.Status = models.StatusEscalated
		ev.outcome.EscalationReason = verdict.Reason
		ev.outcome.InvokedTool = escalationHandoff(skill, ev.snap.Handoff)
		ev.outcome.FinalState = models.StateEscalated
		ev.enter(models.StateEscalated)
		return
	}

	d := dispatch.Dispatch(skill, ev.event, ev.snap.Handoff)
	if len(d.MissingInputs) > 0 {
		ev.outcome.MissingRequiredInputs = d.MissingInputs
		o.actionRequired(ev, models.ActionMissingInputs, false, models.StateEscalationChecked)
		return
	}

	// Connectors get the raw values; the outcome only ever holds the redacted view
	ev.outcome.InvokedTool = decision.RedactAction(d.Tool)
	if o.executor != nil {
		if _, err := o.executor.Execute(ctx, d.Tool); err != nil {
			o.actionRequired(ev, models.ActionToolFailed, true, models.StateEscalationChecked)
			return
		}
	}

	ev.outcome.Status = models.StatusResolved
	ev.outcome.FinalState = models.StateToolDispatched
	ev.enter(models.StateToolDispatched)
}

func (o *Orchestrator) actionRequired(ev *evaluation, reason string, retryable bool, resumeAt models.State) {
	ev.outcome.Status = models.StatusActionRequired
	ev.outcome.ActionReason = reason
	ev.outcome.Retryable = retryable
	ev.outcome.FinalState = models.StateActionRequired
	ev.conv.ResumeAt = resumeAt
	ev.enter(models.StateActionRequired)
}

func (o *Orchestrator) classify(ctx context.Context, ev *evaluation) error {
	start := time.Now()
	defer func() {
		o.metrics.ExternalCallDuration.WithLabelValues("classifier").Observe(time.Since(start).Seconds())
	}()

	classifyCtx, cancel := context.WithTimeout(ctx, o.classifierTimeout)
	defer cancel()

	type reply struct {
		c   Classification
		err error
	}
	replies := make(chan reply, 1)
	go func() {
		c, err := o.classifier.Classify(classifyCtx, ev.event.FreeText)
		replies <- reply{c: c, err: err}
	}()

	select {
	case r := <-replies:
		if r.err != nil {
			return r.err
		}
		ev.event.ClassifiedIntent = r.c.Intent
		ev.event.Confidence = r.c.Confidence
		return nil
	case <-classifyCtx.Done():
		return classifyCtx.Err()
	}
}

// escalationHandoff is where an escalated contact goes: the skill's own
// transfer target when it has one, otherwise the system handoff
func escalationHandoff(skill *models.Skill, handoff catalogue.Handoff) *models.ToolAction {
	t := skill.Tools.Transfer
	if t.Enabled && t.TargetNumber != "" {
		params := map[string]string{"target_number": t.TargetNumber}
		if t.WhisperMessage != "" {
			params["whisper_message"] = t.WhisperMessage
		}
		return &models.ToolAction{Kind: models.ToolTransfer, Params: params}
	}
	return dispatch.SystemHandoff(handoff)
}
