// Package render turns engine events into localized combat-log lines.
// The engine emits structured events with pre-formatted detail values;
// this package owns the sentence templates and their translations.
package render

import (
	"strings"

	"golang.org/x/text/message"

	"github.com/hearthvtt/hearth/internal/game/engine"
)

const defaultGenericLine = "Something happens at the table."

// Localizer is the minimal message-printer contract required by the
// renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// Line returns one localized combat-log line for an engine event.
func Line(loc Localizer, event engine.Event) string {
	detail := func(key string) string { return event.Detail[key] }

	switch event.Kind {
	case engine.EventSpellCast:
		if detail("Ritual") == "true" {
			return localize(loc, "combat.spell_cast_ritual", event.Actor, detail("Spell"))
		}
		return localize(loc, "combat.spell_cast", event.Actor, detail("Spell"), event.Target)
	case engine.EventAttackHit:
		return localize(loc, "combat.attack_hit", event.Actor, event.Target, detail("Total"), detail("AC"))
	case engine.EventAttackCrit:
		return localize(loc, "combat.attack_crit", event.Actor, event.Target)
	case engine.EventAttackMissed:
		return localize(loc, "combat.attack_missed", event.Actor, event.Target, detail("Total"), detail("AC"))
	case engine.EventAttackNoRoll:
		return localize(loc, "combat.attack_no_roll", event.Actor, event.Target)
	case engine.EventSavePassed:
		return localize(loc, "combat.save_passed", event.Target, detail("Total"), detail("DC"))
	case engine.EventSaveFailed:
		return localize(loc, "combat.save_failed", event.Target, detail("Total"), detail("DC"))
	case engine.EventSaveNoRoll:
		return localize(loc, "combat.save_no_roll", event.Target, detail("DC"))
	case engine.EventDamageApplied:
		if detail("Type") == "" {
			return localize(loc, "combat.damage_applied_untyped", event.Target, detail("Damage"), detail("HP"))
		}
		return localize(loc, "combat.damage_applied", event.Target, detail("Damage"), detail("Type"), detail("HP"))
	case engine.EventDamageSkipped:
		return localize(loc, "combat.damage_skipped", event.Actor)
	case engine.EventConditionAdded:
		return localize(loc, "combat.condition_added", event.Target, detail("Condition"))
	case engine.EventConditionRemoved:
		return localize(loc, "combat.condition_removed", event.Target, detail("Condition"))
	case engine.EventActorDowned:
		return localize(loc, "combat.actor_downed", event.Target)
	case engine.EventActionFailed:
		return localize(loc, "combat.action_failed", event.Actor, detail("Reason"))
	default:
		return localizeWithFallback(loc, "combat.generic", defaultGenericLine)
	}
}

func localize(loc Localizer, key message.Reference, args ...any) string {
	if loc == nil {
		if asString, ok := key.(string); ok {
			return asString
		}
		return ""
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key string, fallback string) string {
	value := strings.TrimSpace(localize(loc, key))
	if value == "" || value == key {
		return fallback
	}
	return value
}
