package render

import (
	"fmt"
	"testing"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/hearthvtt/hearth/internal/game/engine"
)

func TestLineWithRealPrinterUsesRegisteredCatalog(t *testing.T) {
	t.Parallel()

	printer := message.NewPrinter(language.AmericanEnglish)

	tests := []struct {
		name  string
		event engine.Event
		want  string
	}{
		{
			name: "spell cast",
			event: engine.Event{
				Kind: engine.EventSpellCast, Actor: "Aria", Target: "Ghoul 1",
				Detail: map[string]string{"Spell": "Magic Missile", "Level": "1"},
			},
			want: "Aria casts Magic Missile at Ghoul 1.",
		},
		{
			name: "ritual cast",
			event: engine.Event{
				Kind: engine.EventSpellCast, Actor: "Aria", Target: "Aria",
				Detail: map[string]string{"Spell": "Detect Magic", "Ritual": "true"},
			},
			want: "Aria casts Detect Magic as a ritual.",
		},
		{
			name: "attack hit",
			event: engine.Event{
				Kind: engine.EventAttackHit, Actor: "Aria", Target: "Ghoul 1",
				Detail: map[string]string{"Total": "14", "Natural": "9", "AC": "12"},
			},
			want: "Aria hits Ghoul 1 (14 vs AC 12).",
		},
		{
			name: "critical hit",
			event: engine.Event{
				Kind: engine.EventAttackCrit, Actor: "Aria", Target: "Ghoul 1",
				Detail: map[string]string{"Total": "26", "Natural": "20", "AC": "12"},
			},
			want: "Aria lands a critical hit on Ghoul 1!",
		},
		{
			name: "save failed",
			event: engine.Event{
				Kind: engine.EventSaveFailed, Actor: "Aria", Target: "Ghoul 2",
				Detail: map[string]string{"Total": "7", "DC": "14"},
			},
			want: "Ghoul 2 fails the save (7 vs DC 14).",
		},
		{
			name: "typed damage",
			event: engine.Event{
				Kind: engine.EventDamageApplied, Actor: "Aria", Target: "Ghoul 1",
				Detail: map[string]string{"Damage": "10", "Type": "force", "HP": "12"},
			},
			want: "Ghoul 1 takes 10 force damage (12 HP left).",
		},
		{
			name: "untyped damage",
			event: engine.Event{
				Kind: engine.EventDamageApplied, Actor: "Aria", Target: "Ghoul 1",
				Detail: map[string]string{"Damage": "10", "HP": "12"},
			},
			want: "Ghoul 1 takes 10 damage (12 HP left).",
		},
		{
			name: "downed",
			event: engine.Event{
				Kind: engine.EventActorDowned, Actor: "Aria", Target: "Zombie",
			},
			want: "Zombie goes down!",
		},
		{
			name: "condition added",
			event: engine.Event{
				Kind: engine.EventConditionAdded, Actor: "Aria", Target: "Ghoul 1",
				Detail: map[string]string{"Condition": "paralyzed"},
			},
			want: "Ghoul 1 is now paralyzed.",
		},
		{
			name: "damage skipped",
			event: engine.Event{
				Kind: engine.EventDamageSkipped, Actor: "Aria", Target: "Ghoul 1",
			},
			want: "Aria's damage roll went unanswered; nothing lands.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Line(printer, tt.event); got != tt.want {
				t.Errorf("Line() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLinePortugueseCatalog(t *testing.T) {
	t.Parallel()

	printer := message.NewPrinter(language.MustParse("pt-BR"))
	event := engine.Event{
		Kind: engine.EventSaveFailed, Actor: "Aria", Target: "Carniçal",
		Detail: map[string]string{"Total": "7", "DC": "14"},
	}
	if got, want := Line(printer, event), "Carniçal falha na resistência (7 contra CD 14)."; got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
}

func TestLineUnknownKindFallsBack(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{}}
	event := engine.Event{Kind: engine.EventKind("something.else"), Actor: "Aria"}
	if got := Line(loc, event); got != defaultGenericLine {
		t.Errorf("Line() = %q, want the generic fallback", got)
	}
}

func TestLineWithNilLocalizer(t *testing.T) {
	t.Parallel()

	event := engine.Event{Kind: engine.EventActorDowned, Target: "Zombie"}
	if got := Line(nil, event); got != "combat.actor_downed" {
		t.Errorf("Line() = %q, want the raw key when no localizer is set", got)
	}
}

type fakeLocalizer struct {
	values map[string]string
}

func (f fakeLocalizer) Sprintf(key message.Reference, args ...any) string {
	asString, ok := key.(string)
	if !ok {
		return ""
	}
	template := f.values[asString]
	if template == "" {
		return asString
	}
	if len(args) == 0 {
		return template
	}
	return fmt.Sprintf(template, args...)
}
