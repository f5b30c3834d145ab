package catalogue

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"skill-routing-engine/pkg/models"
)

type Agent struct {
	Name        string `yaml:"name" json:"name"`
	PhoneNumber string `yaml:"phoneNumber" json:"phone_number,omitempty"`
}

// Handoff is the system-level disposition used when no skill is eligible
type Handoff struct {
	Behavior       string `yaml:"behavior" json:"behavior"` // transfer | message
	TransferNumber string `yaml:"transferNumber" json:"transfer_number"`
}

// Snapshot is an immutable, validated copy of the agent configuration.
// Evaluations receive it explicitly and must not modify it.
type Snapshot struct {
	Agent         Agent               `yaml:"agent" json:"agent"`
	Handoff       Handoff             `yaml:"handoff" json:"handoff"`
	HolidayRegion string              `yaml:"holidayRegion" json:"holiday_region"`
	Holidays      map[string][]string `yaml:"holidays" json:"holidays,omitempty"`
	Skills        []models.Skill      `yaml:"skills" json:"skills"`

	Version  string    `yaml:"-" json:"version"`
	LoadedAt time.Time `yaml:"-" json:"loaded_at"`

	byID map[string]int
}

// Parse decodes and validates a YAML catalogue
func Parse(data []byte) (*Snapshot, error) {
	snap := &Snapshot{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(snap); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidCatalogue, err)
	}

	if err := Validate(snap); err != nil {
		return nil, err
	}

	if snap.Handoff.Behavior == "" {
		snap.Handoff.Behavior = string(models.FallbackTransfer)
	}
	if snap.HolidayRegion == "" {
		snap.HolidayRegion = "US"
	}

	snap.byID = make(map[string]int, len(snap.Skills))
	for i, skill := range snap.Skills {
		snap.byID[skill.ID] = i
	}
	snap.Version = uuid.New().String()
	snap.LoadedAt = time.Now()

	return snap, nil
}

// LoadFile reads and parses a catalogue file
func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	return Parse(data)
}

// Skill looks a skill up by id
func (s *Snapshot) Skill(id string) (*models.Skill, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.Skills[i], true
}
