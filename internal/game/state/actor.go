// Package state holds the shared simulation state for one live table
// session: actors, tokens, the active encounter, and the action economy
// ledger. All mutation flows through a draft, the single write boundary
// the engine holds while an action executes.
package state

import (
	"encoding/json"

	"github.com/hearthvtt/hearth/internal/game/dnd5e"
)

// ActorKind distinguishes player characters from GM-run creatures.
type ActorKind string

const (
	KindCharacter ActorKind = "character"
	KindNPC       ActorKind = "npc"
)

// Actor is one combat participant. Board-level fields (hit points, armor
// class, conditions) live here directly; system-level data (spells known,
// weapons carried, spell slots) lives in the Rules payload and is read
// through the dnd5e sheet view.
type Actor struct {
	ID            string
	Name          string
	Kind          ActorKind
	ControllerID  string
	Level         int
	AC            int
	HP            int
	MaxHP         int
	Scores        dnd5e.AbilityScores
	Proficiencies []string
	Conditions    []string
	Rules         json.RawMessage

	// ProficiencyBonus is read directly from the stat block for NPCs.
	// Characters derive theirs from level instead; see Proficiency.
	ProficiencyBonus int
}

// Proficiency returns the actor's proficiency bonus: level-derived for
// characters, straight from the stat block for NPCs.
func (a Actor) Proficiency() int {
	if a.Kind == KindCharacter {
		return dnd5e.ProficiencyBonusForLevel(a.Level)
	}
	return a.ProficiencyBonus
}

// HasCondition reports whether the actor currently carries the condition.
func (a Actor) HasCondition(condition string) bool {
	for _, c := range a.Conditions {
		if c == condition {
			return true
		}
	}
	return false
}

// HasProficiency reports whether the actor's proficiency list carries the
// tag, which may be a specific item id or a category such as "martial".
func (a Actor) HasProficiency(tag string) bool {
	for _, p := range a.Proficiencies {
		if p == tag {
			return true
		}
	}
	return false
}

// Controlled reports whether the participant controls this actor. GM-run
// actors have no controller and are controlled by nobody but the GM.
func (a Actor) Controlled(participantID string) bool {
	return a.ControllerID != "" && a.ControllerID == participantID
}

// clone deep-copies the actor so snapshots do not alias live state.
func (a Actor) clone() Actor {
	out := a
	if a.Proficiencies != nil {
		out.Proficiencies = append([]string(nil), a.Proficiencies...)
	}
	if a.Conditions != nil {
		out.Conditions = append([]string(nil), a.Conditions...)
	}
	if a.Rules != nil {
		out.Rules = append(json.RawMessage(nil), a.Rules...)
	}
	return out
}
