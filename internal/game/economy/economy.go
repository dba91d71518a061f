// Package economy tracks the per-actor, per-turn action economy: which of
// the action, bonus action, and reaction slots an actor has already spent
// this turn. The ledger validates and consumes as two separate steps so the
// engine can check availability during validation and spend unconditionally
// during execution; only the turn boundary resets it.
package economy

import (
	"fmt"

	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
)

// Kind is one of the three per-turn action slots.
type Kind string

const (
	Action      Kind = "action"
	BonusAction Kind = "bonus_action"
	Reaction    Kind = "reaction"
)

// Valid reports whether the kind names a real slot.
func (k Kind) Valid() bool {
	switch k {
	case Action, BonusAction, Reaction:
		return true
	}
	return false
}

// Entry records one consumed slot and the tag describing what spent it,
// such as "spell:3" for a third-level spell or "weapon:longsword".
type Entry struct {
	Kind Kind
	Tag  string
}

// Ledger tracks consumed slots per actor for the current turn. It is not
// safe for concurrent use; the owning table guards access.
type Ledger struct {
	consumed map[string][]Entry
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{consumed: make(map[string][]Entry)}
}

// Validate reports whether the actor can still spend the slot this turn.
// It returns a structured error naming the slot when it was already spent.
// Validate never consumes; pair it with Consume.
func (l *Ledger) Validate(actorID string, kind Kind) error {
	if !kind.Valid() {
		return apperrors.WithMetadata(
			apperrors.CodeEconomyInvalid,
			fmt.Sprintf("unknown action economy kind %q", kind),
			map[string]string{"Kind": string(kind)},
		)
	}
	for _, entry := range l.consumed[actorID] {
		if entry.Kind == kind {
			return apperrors.WithMetadata(
				apperrors.CodeEconomyExhausted,
				fmt.Sprintf("%s already spent this turn", kind),
				map[string]string{
					"ActorID": actorID,
					"Kind":    string(kind),
					"Tag":     entry.Tag,
				},
			)
		}
	}
	return nil
}

// Consume records the slot as spent. Consumption is unconditional: callers
// validate first, and the ledger does not re-check. Spending the same slot
// twice leaves two entries, which the next Validate rejects.
func (l *Ledger) Consume(actorID string, kind Kind, tag string) {
	l.consumed[actorID] = append(l.consumed[actorID], Entry{Kind: kind, Tag: tag})
}

// Entries returns a copy of the actor's consumed slots for this turn.
func (l *Ledger) Entries(actorID string) []Entry {
	entries := l.consumed[actorID]
	if len(entries) == 0 {
		return nil
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Snapshot returns a copy of every actor's consumed slots.
func (l *Ledger) Snapshot() map[string][]Entry {
	out := make(map[string][]Entry, len(l.consumed))
	for actorID := range l.consumed {
		out[actorID] = l.Entries(actorID)
	}
	return out
}

// Reset clears every actor's ledger. Only the turn boundary calls this;
// the ledger exposes no per-action rollback.
func (l *Ledger) Reset() {
	clear(l.consumed)
}
