package dnd5e

import (
	"encoding/json"
	"fmt"
)

// CastingTime is the action-economy cost of casting a spell.
type CastingTime string

const (
	CastingTimeAction      CastingTime = "action"
	CastingTimeBonusAction CastingTime = "bonus_action"
	CastingTimeReaction    CastingTime = "reaction"
)

// SaveEffect describes what a successful saving throw does to the damage.
type SaveEffect string

const (
	// SaveEffectHalf halves the damage on a successful save, rounded down.
	SaveEffectHalf SaveEffect = "half"
	// SaveEffectNone negates the damage entirely on a successful save.
	SaveEffectNone SaveEffect = "none"
)

// SpellSave describes the saving throw a spell forces on its targets.
type SpellSave struct {
	Ability Ability    `json:"ability"`
	OnSave  SaveEffect `json:"on_save"`
}

// SpellDamage describes the damage a spell deals. Expression is a dice
// expression such as "8d6" or "3d8+2".
type SpellDamage struct {
	Expression string `json:"expression"`
	Type       string `json:"type"`
}

// Spell is one compendium spell document.
type Spell struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Level       int          `json:"level"`
	School      string       `json:"school,omitempty"`
	CastingTime CastingTime  `json:"casting_time"`
	Ritual      bool         `json:"ritual,omitempty"`
	Verbal      bool         `json:"verbal,omitempty"`
	Somatic     bool         `json:"somatic,omitempty"`
	AttackRoll  bool         `json:"attack_roll,omitempty"`
	Save        *SpellSave   `json:"save,omitempty"`
	Damage      *SpellDamage `json:"damage,omitempty"`
	Conditions  []Condition  `json:"conditions,omitempty"`
	MaxTargets  int          `json:"max_targets,omitempty"`
}

// Cantrip reports whether the spell is a cantrip. Cantrips cost no spell
// slot and cannot be upcast.
func (s Spell) Cantrip() bool {
	return s.Level == 0
}

// TargetLimit returns the number of targets the spell accepts. Spells that
// declare no limit accept a single target.
func (s Spell) TargetLimit() int {
	if s.MaxTargets < 1 {
		return 1
	}
	return s.MaxTargets
}

// Validate checks the structural fields a compendium spell must carry.
func (s Spell) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("spell missing id")
	}
	if s.Name == "" {
		return fmt.Errorf("spell %s missing name", s.ID)
	}
	if s.Level < 0 || s.Level > 9 {
		return fmt.Errorf("spell %s has invalid level %d", s.ID, s.Level)
	}
	switch s.CastingTime {
	case CastingTimeAction, CastingTimeBonusAction, CastingTimeReaction:
	default:
		return fmt.Errorf("spell %s has invalid casting time %q", s.ID, s.CastingTime)
	}
	if s.Save != nil {
		switch s.Save.OnSave {
		case SaveEffectHalf, SaveEffectNone:
		default:
			return fmt.Errorf("spell %s has invalid save effect %q", s.ID, s.Save.OnSave)
		}
	}
	if s.AttackRoll && s.Save != nil {
		return fmt.Errorf("spell %s declares both an attack roll and a save", s.ID)
	}
	return nil
}

// DecodeSpell decodes and validates a compendium spell document.
func DecodeSpell(raw []byte) (Spell, error) {
	var spell Spell
	if err := json.Unmarshal(raw, &spell); err != nil {
		return Spell{}, fmt.Errorf("decode spell: %w", err)
	}
	if err := spell.Validate(); err != nil {
		return Spell{}, err
	}
	return spell, nil
}
