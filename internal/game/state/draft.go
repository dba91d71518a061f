package state

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/hearthvtt/hearth/internal/game/economy"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
)

// Draft is the exclusive write handle on a table. Mutations apply to the
// live state immediately; there is no rollback. Commit collects what
// changed for persistence and broadcast, then releases the handle. A draft
// must not be used after Commit or Release.
type Draft struct {
	table *Table
	dirty map[string]struct{}
	done  bool
}

// Actor returns a copy of the actor as currently held by the draft.
// Execution phases re-resolve here rather than trusting the validation
// snapshot, since state may have moved between the two.
func (d *Draft) Actor(actorID string) (Actor, bool) {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	actor, ok := d.table.actors[actorID]
	if !ok {
		return Actor{}, false
	}
	return actor.clone(), true
}

// Token returns a copy of the token.
func (d *Draft) Token(tokenID string) (Token, bool) {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	token, ok := d.table.tokens[tokenID]
	if !ok {
		return Token{}, false
	}
	return *token, true
}

// ActorByToken resolves a token to a copy of its actor.
func (d *Draft) ActorByToken(tokenID string) (Actor, bool) {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	token, ok := d.table.tokens[tokenID]
	if !ok {
		return Actor{}, false
	}
	actor, ok := d.table.actors[token.ActorID]
	if !ok {
		return Actor{}, false
	}
	return actor.clone(), true
}

// ApplyDamage reduces the actor's hit points, never below zero.
func (d *Draft) ApplyDamage(actorID string, amount int) (before, after int, err error) {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	actor, ok := d.table.actors[actorID]
	if !ok {
		return 0, 0, actorNotFoundError(actorID)
	}
	if amount < 0 {
		amount = 0
	}
	before = actor.HP
	actor.HP = max(actor.HP-amount, 0)
	d.dirty[actorID] = struct{}{}
	return before, actor.HP, nil
}

// AddCondition marks the actor with a condition. Adding a condition the
// actor already carries is a no-op.
func (d *Draft) AddCondition(actorID, condition string) error {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	actor, ok := d.table.actors[actorID]
	if !ok {
		return actorNotFoundError(actorID)
	}
	if actor.HasCondition(condition) {
		return nil
	}
	actor.Conditions = append(actor.Conditions, condition)
	d.dirty[actorID] = struct{}{}
	return nil
}

// RemoveCondition clears a condition from the actor. It fails when the
// actor does not carry it, which execution treats as state having moved
// since validation.
func (d *Draft) RemoveCondition(actorID, condition string) error {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	actor, ok := d.table.actors[actorID]
	if !ok {
		return actorNotFoundError(actorID)
	}
	for i, c := range actor.Conditions {
		if c == condition {
			actor.Conditions = append(actor.Conditions[:i], actor.Conditions[i+1:]...)
			d.dirty[actorID] = struct{}{}
			return nil
		}
	}
	return apperrors.WithMetadata(
		apperrors.CodeConditionNotPresent,
		fmt.Sprintf("actor %s does not have condition %s", actorID, condition),
		map[string]string{"ActorID": actorID, "Condition": condition},
	)
}

// SetRules replaces the actor's system-level rules payload, typically
// after spending a spell slot through the sheet view.
func (d *Draft) SetRules(actorID string, rules json.RawMessage) error {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	actor, ok := d.table.actors[actorID]
	if !ok {
		return actorNotFoundError(actorID)
	}
	actor.Rules = append(json.RawMessage(nil), rules...)
	d.dirty[actorID] = struct{}{}
	return nil
}

// ConsumeEconomy spends an action economy slot. Consumption is
// unconditional; validation happened before the draft opened.
func (d *Draft) ConsumeEconomy(actorID string, kind economy.Kind, tag string) {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	d.table.ledger.Consume(actorID, kind, tag)
}

// EconomyEntries returns the slots the actor has spent this turn.
func (d *Draft) EconomyEntries(actorID string) []economy.Entry {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	return d.table.ledger.Entries(actorID)
}

// ChangeSet is what a committed draft touched: deep copies of every
// mutated actor, ordered by id, at the revision the commit produced.
type ChangeSet struct {
	Revision uint64
	Actors   []Actor
}

// Commit closes the draft and returns the change set for persistence and
// broadcast. Committing twice returns an empty change set.
func (d *Draft) Commit() ChangeSet {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	if d.done {
		return ChangeSet{Revision: d.table.revision}
	}
	d.done = true
	d.table.drafting = false
	d.table.revision++

	changes := ChangeSet{Revision: d.table.revision}
	for actorID := range d.dirty {
		if actor, ok := d.table.actors[actorID]; ok {
			changes.Actors = append(changes.Actors, actor.clone())
		}
	}
	slices.SortFunc(changes.Actors, func(a, b Actor) int {
		return strings.Compare(a.ID, b.ID)
	})
	return changes
}

// Release closes the draft without reporting changes. Mutations already
// applied stay applied; Release after Commit is a no-op.
func (d *Draft) Release() {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	if d.done {
		return
	}
	d.done = true
	d.table.drafting = false
}
