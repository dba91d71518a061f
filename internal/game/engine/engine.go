// Package engine dispatches table actions: it validates requests against a
// state snapshot, serializes execution per session, and hands executing
// handlers the draft, the roll channel, and the event stream. Validation
// is synchronous and side-effect free; execution may suspend on player
// rolls for minutes while the session queue holds everything else back.
package engine

import (
	"context"
	"encoding/json"

	"github.com/hearthvtt/hearth/internal/game/rollmux"
	"github.com/hearthvtt/hearth/internal/game/state"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
)

// Request is one action submission. It is immutable once dispatched; the
// payload carries the action-specific parameters.
type Request struct {
	SessionID      string
	Type           string
	ParticipantID  string
	GM             bool
	ActorID        string
	ActorTokenID   string
	TargetTokenIDs []string
	Payload        json.RawMessage
	RequestID      string
}

// CostStore names where a declared resource lives.
type CostStore string

const (
	// CostStoreSheet marks resources kept on the actor's rules payload,
	// such as spell slots.
	CostStoreSheet CostStore = "sheet"
	// CostStoreLedger marks per-turn economy slots tracked on the ledger.
	CostStoreLedger CostStore = "ledger"
)

// ResourceCost is one resource an accepted action will spend during
// execution. The verdict declares costs up front so clients can show
// what confirming an action commits the actor to; execution consumes
// exactly what the verdict declared, and nothing on rejection.
type ResourceCost struct {
	Path   string
	Amount int
	Store  CostStore
}

// Verdict is the outcome of the validation stage: either accepted with
// the costs execution will spend, or a list of structured rejections
// the caller surfaces verbatim. Validation never raises; execution
// faults are errors instead.
type Verdict struct {
	Rejections []*apperrors.Error
	Costs      []ResourceCost
}

// Accepted reports whether validation passed.
func (v Verdict) Accepted() bool {
	return len(v.Rejections) == 0
}

// Accept returns a passing verdict declaring the given resource costs.
func Accept(costs ...ResourceCost) Verdict {
	return Verdict{Costs: costs}
}

// Reject returns a failing verdict carrying the given rejections.
func Reject(errs ...*apperrors.Error) Verdict {
	return Verdict{Rejections: errs}
}

// EventKind names a chat-visible moment during action execution.
type EventKind string

const (
	EventSpellCast        EventKind = "spell.cast"
	EventAttackHit        EventKind = "attack.hit"
	EventAttackCrit       EventKind = "attack.crit"
	EventAttackMissed     EventKind = "attack.missed"
	EventAttackNoRoll     EventKind = "attack.no_roll"
	EventSavePassed       EventKind = "save.passed"
	EventSaveFailed       EventKind = "save.failed"
	EventSaveNoRoll       EventKind = "save.no_roll"
	EventDamageApplied    EventKind = "damage.applied"
	EventDamageSkipped    EventKind = "damage.skipped"
	EventConditionAdded   EventKind = "condition.added"
	EventConditionRemoved EventKind = "condition.removed"
	EventActorDowned      EventKind = "actor.downed"
	EventActionFailed     EventKind = "action.failed"
)

// Event is one structured notification emitted while an action executes.
// Detail keys depend on the kind; values are pre-formatted for display.
type Event struct {
	SessionID string
	Kind      EventKind
	Actor     string
	Target    string
	Detail    map[string]string
}

// Notifier receives events as they happen. Implementations must not
// block: a slow subscriber cannot be allowed to stall an executing
// action.
type Notifier interface {
	ActionEvent(event Event)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) ActionEvent(Event) {}

// Env is the execution environment a handler works in: the exclusive
// draft, the roll channel, and the event stream. Handlers mutate state
// only through the draft and communicate only through events and rolls.
type Env struct {
	SessionID string
	Draft     *state.Draft
	Rolls     *rollmux.Mux
	notifier  Notifier
}

// Notify emits an event on the session's stream.
func (e *Env) Notify(kind EventKind, actor, target string, detail map[string]string) {
	e.notifier.ActionEvent(Event{
		SessionID: e.SessionID,
		Kind:      kind,
		Actor:     actor,
		Target:    target,
		Detail:    detail,
	})
}

// Handler implements one action type. Validate inspects a snapshot and
// must not mutate anything or suspend; Execute drives the workflow
// against the draft and may block on rolls. ApprovalMessage is the line
// shown to the GM when the table runs with approvals on.
type Handler interface {
	Type() string
	Priority() int
	ApprovalMessage(req Request, snap state.Snapshot) string
	Validate(req Request, snap state.Snapshot) Verdict
	Execute(ctx context.Context, req Request, env *Env) error
}
