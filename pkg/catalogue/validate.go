package catalogue

import (
	"errors"
	"fmt"
	"time"

	"skill-routing-engine/pkg/models"
	"skill-routing-engine/pkg/schedule"
)

// ErrInvalidCatalogue wraps every configuration validation failure
var ErrInvalidCatalogue = errors.New("invalid catalogue")

var (
	validCategories = map[models.Category]bool{
		models.CategoryHealthcare: true,
		models.CategoryFintech:    true,
		models.CategoryRealEstate: true,
		models.CategorySaaS:       true,
		models.CategoryGeneral:    true,
	}
	validInputTypes = map[models.InputType]bool{
		models.InputText:    true,
		models.InputNumber:  true,
		models.InputDate:    true,
		models.InputPhone:   true,
		models.InputBoolean: true,
		models.InputFile:    true,
	}
	validFallbacks = map[models.FallbackAction]bool{
		models.FallbackTransfer: true,
		models.FallbackMessage:  true,
		models.FallbackHangup:   true,
	}
)

// Validate checks every skill and cross-skill invariant and reports all
// violations at once
func Validate(snap *Snapshot) error {
	var errs []error

	switch snap.Handoff.Behavior {
	case "", string(models.FallbackTransfer), string(models.FallbackMessage):
	default:
		errs = append(errs, fmt.Errorf("handoff.behavior %q must be transfer or message", snap.Handoff.Behavior))
	}

	for region, dates := range snap.Holidays {
		for _, d := range dates {
			if _, err := time.Parse("2006-01-02", d); err != nil {
				errs = append(errs, fmt.Errorf("holidays.%s: invalid date %q", region, d))
			}
		}
	}

	seen := make(map[string]bool, len(snap.Skills))
	for i := range snap.Skills {
		skill := &snap.Skills[i]
		if skill.ID == "" {
			errs = append(errs, fmt.Errorf("skills[%d]: id is required", i))
			continue
		}
		if seen[skill.ID] {
			errs = append(errs, fmt.Errorf("skill %s: duplicate id", skill.ID))
		}
		seen[skill.ID] = true

		for _, err := range validateSkill(skill) {
			errs = append(errs, fmt.Errorf("skill %s: %w", skill.ID, err))
		}
	}

	errs = append(errs, validateIVRDigits(snap.Skills)...)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCatalogue, errors.Join(errs...))
	}
	return nil
}

func validateSkill(skill *models.Skill) []error {
	var errs []error

	if !validCategories[skill.Category] {
		errs = append(errs, fmt.Errorf("unknown category %q", skill.Category))
	}
	if t := skill.Logic.EscalationThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("escalationThreshold %v outside [0,1]", t))
	}
	if r := skill.Metrics.TargetResolutionRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("targetResolutionRate %v outside [0,1]", r))
	}
	if !validFallbacks[skill.Logic.FallbackAction] {
		errs = append(errs, fmt.Errorf("unknown fallbackAction %q", skill.Logic.FallbackAction))
	}

	if _, err := schedule.Compile(skill.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}

	inputIDs := make(map[string]bool, len(skill.Inputs))
	for i, in := range skill.Inputs {
		if in.ID == "" {
			errs = append(errs, fmt.Errorf("inputs[%d]: id is required", i))
			continue
		}
		if inputIDs[in.ID] {
			errs = append(errs, fmt.Errorf("input %s: duplicate id", in.ID))
		}
		inputIDs[in.ID] = true
		if !validInputTypes[in.Type] {
			errs = append(errs, fmt.Errorf("input %s: unknown type %q", in.ID, in.Type))
		}
	}

	if d := skill.Tools.IVR.TriggerDigit; d != "" && !isDTMFDigit(d) {
		errs = append(errs, fmt.Errorf("ivr.triggerDigit %q must be a single digit 0-9", d))
	}
	if skill.Tools.Calendar.LookaheadDays < 0 {
		errs = append(errs, fmt.Errorf("calendar.lookaheadDays must not be negative"))
	}

	return errs
}

// validateIVRDigits rejects two enabled IVR tools claiming the same digit on
// a shared channel
func validateIVRDigits(skills []models.Skill) []error {
	var errs []error
	claimed := map[models.Channel]map[string]string{
		models.ChannelSMS:   {},
		models.ChannelVoice: {},
	}

	for i := range skills {
		skill := &skills[i]
		ivr := skill.Tools.IVR
		if !ivr.Enabled || !isDTMFDigit(ivr.TriggerDigit) {
			continue
		}
		for _, ch := range []models.Channel{models.ChannelSMS, models.ChannelVoice} {
			if !skill.Channels.Supports(ch) {
				continue
			}
			if owner, ok := claimed[ch][ivr.TriggerDigit]; ok && owner != skill.ID {
				errs = append(errs, fmt.Errorf("ivr digit %s on %s claimed by both %s and %s", ivr.TriggerDigit, ch, owner, skill.ID))
				continue
			}
			claimed[ch][ivr.TriggerDigit] = skill.ID
		}
	}

	return errs
}

func isDTMFDigit(d string) bool {
	return len(d) == 1 && d[0] >= '0' && d[0] <= '9'
}
