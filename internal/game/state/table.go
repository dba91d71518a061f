package state

import (
	"fmt"
	"sync"

	"github.com/hearthvtt/hearth/internal/game/economy"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
)

// Table owns the live simulation state for one session. Reads go through
// Snapshot, which deep-copies; writes go through a Draft, of which at most
// one exists at a time. The revision counter increases on every committed
// change so clients can order broadcast updates.
type Table struct {
	mu        sync.Mutex
	sessionID string
	actors    map[string]*Actor
	tokens    map[string]*Token
	encounter Encounter
	ledger    *economy.Ledger
	revision  uint64
	drafting  bool
}

// NewTable creates a table for one session, seeded with the campaign's
// actors and token placements.
func NewTable(sessionID string, actors []Actor, tokens []Token) *Table {
	t := &Table{
		sessionID: sessionID,
		actors:    make(map[string]*Actor, len(actors)),
		tokens:    make(map[string]*Token, len(tokens)),
		ledger:    economy.NewLedger(),
	}
	for _, actor := range actors {
		a := actor.clone()
		t.actors[a.ID] = &a
	}
	for _, token := range tokens {
		tk := token
		t.tokens[tk.ID] = &tk
	}
	return t
}

// SessionID returns the session this table belongs to.
func (t *Table) SessionID() string {
	return t.sessionID
}

// Snapshot returns a deep copy of the current state. Snapshots are safe to
// read concurrently and never observe later mutations.
func (t *Table) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Table) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID: t.sessionID,
		Revision:  t.revision,
		Actors:    make(map[string]Actor, len(t.actors)),
		Tokens:    make(map[string]Token, len(t.tokens)),
		Encounter: t.encounter.clone(),
		Economy:   t.ledger.Snapshot(),
	}
	for id, actor := range t.actors {
		snap.Actors[id] = actor.clone()
	}
	for id, token := range t.tokens {
		snap.Tokens[id] = *token
	}
	return snap
}

// BeginDraft opens the exclusive write boundary. It fails when another
// draft is outstanding; the engine serializes actions per session, so a
// conflict here means a caller bypassed the queue.
func (t *Table) BeginDraft() (*Draft, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drafting {
		return nil, apperrors.New(apperrors.CodeDraftInProgress, "another action is already mutating this session")
	}
	t.drafting = true
	return &Draft{table: t, dirty: make(map[string]struct{})}, nil
}

// AddActor inserts or replaces an actor.
func (t *Table) AddActor(actor Actor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := actor.clone()
	t.actors[a.ID] = &a
	t.revision++
}

// PlaceToken inserts or moves a token. The referenced actor must exist.
func (t *Table) PlaceToken(token Token) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.actors[token.ActorID]; !ok {
		return actorNotFoundError(token.ActorID)
	}
	tk := token
	t.tokens[tk.ID] = &tk
	t.revision++
	return nil
}

// RemoveToken deletes a token placement.
func (t *Table) RemoveToken(tokenID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tokens[tokenID]; !ok {
		return apperrors.WithMetadata(
			apperrors.CodeTokenNotFound,
			fmt.Sprintf("token %s not found", tokenID),
			map[string]string{"TokenID": tokenID},
		)
	}
	delete(t.tokens, tokenID)
	t.revision++
	return nil
}

// StartEncounter begins combat with the given actor order and resets the
// action economy for everyone.
func (t *Table) StartEncounter(order []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, actorID := range order {
		if _, ok := t.actors[actorID]; !ok {
			return actorNotFoundError(actorID)
		}
	}
	t.encounter = Encounter{
		Active: true,
		Round:  1,
		Order:  append([]string(nil), order...),
	}
	t.ledger.Reset()
	t.revision++
	return nil
}

// AdvanceTurn is the turn boundary: it moves the encounter to the next
// turn and resets every actor's action economy. Nothing else resets the
// ledger. It refuses to advance while an action is still executing.
func (t *Table) AdvanceTurn() (Encounter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drafting {
		return Encounter{}, apperrors.New(apperrors.CodeDraftInProgress, "cannot advance the turn while an action is executing")
	}
	t.encounter.advance()
	t.ledger.Reset()
	t.revision++
	return t.encounter.clone(), nil
}

// EndEncounter stops combat and clears the action economy.
func (t *Table) EndEncounter() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.encounter = Encounter{}
	t.ledger.Reset()
	t.revision++
}

func actorNotFoundError(actorID string) *apperrors.Error {
	return apperrors.WithMetadata(
		apperrors.CodeActorNotFound,
		fmt.Sprintf("actor %s not found", actorID),
		map[string]string{"ActorID": actorID},
	)
}

// Snapshot is a deep-copied, read-only view of a table at one revision.
type Snapshot struct {
	SessionID string
	Revision  uint64
	Actors    map[string]Actor
	Tokens    map[string]Token
	Encounter Encounter
	Economy   map[string][]economy.Entry
}

// Actor looks up an actor by id.
func (s Snapshot) Actor(actorID string) (Actor, bool) {
	actor, ok := s.Actors[actorID]
	return actor, ok
}

// Token looks up a token by id.
func (s Snapshot) Token(tokenID string) (Token, bool) {
	token, ok := s.Tokens[tokenID]
	return token, ok
}

// ActorByToken resolves a token to its actor.
func (s Snapshot) ActorByToken(tokenID string) (Actor, bool) {
	token, ok := s.Tokens[tokenID]
	if !ok {
		return Actor{}, false
	}
	return s.Actor(token.ActorID)
}

// EconomyEntries returns the slots the actor has spent this turn.
func (s Snapshot) EconomyEntries(actorID string) []economy.Entry {
	return s.Economy[actorID]
}
