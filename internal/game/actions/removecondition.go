package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hearthvtt/hearth/internal/game/dnd5e"
	"github.com/hearthvtt/hearth/internal/game/economy"
	"github.com/hearthvtt/hearth/internal/game/engine"
	"github.com/hearthvtt/hearth/internal/game/state"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
)

// RemoveConditionPayload is the action payload for clearing a condition
// from a target.
type RemoveConditionPayload struct {
	Condition string `json:"condition"`
}

// RemoveCondition spends an action to clear a condition from one target:
// shaking an ally awake, steadying someone who is frightened. No rolls
// are involved, so execution never suspends.
type RemoveCondition struct{}

// NewRemoveCondition builds the condition.remove handler.
func NewRemoveCondition() *RemoveCondition {
	return &RemoveCondition{}
}

var _ engine.Handler = (*RemoveCondition)(nil)

func (h *RemoveCondition) Type() string {
	return TypeRemoveCondition
}

func (h *RemoveCondition) Priority() int {
	return 0
}

// ApprovalMessage describes the action for a GM approval prompt.
func (h *RemoveCondition) ApprovalMessage(req engine.Request, snap state.Snapshot) string {
	var payload RemoveConditionPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return "remove a condition"
	}
	actor, ok := snap.Actor(req.ActorID)
	if !ok {
		return fmt.Sprintf("remove %s", payload.Condition)
	}
	targets, err := resolveTargets(req, snap)
	if err != nil || len(targets) == 0 {
		return fmt.Sprintf("%s wants to remove %s", actor.Name, payload.Condition)
	}
	return fmt.Sprintf("%s wants to remove %s from %s", actor.Name, payload.Condition, targetNames(targets))
}

// Validate checks the removal against a snapshot.
func (h *RemoveCondition) Validate(req engine.Request, snap state.Snapshot) engine.Verdict {
	var payload RemoveConditionPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return engine.Reject(apperrors.New(
			apperrors.CodeActionPayloadInvalid,
			"condition removal payload does not decode",
		))
	}
	if !dnd5e.KnownCondition(payload.Condition) {
		return engine.Reject(apperrors.WithMetadata(
			apperrors.CodeConditionUnknown,
			fmt.Sprintf("unknown condition %q", payload.Condition),
			map[string]string{"Condition": payload.Condition},
		))
	}

	actor, rerr := resolveActor(req, snap)
	if rerr != nil {
		return engine.Reject(rerr)
	}
	if rerr := checkCanAct(actor); rerr != nil {
		return engine.Reject(rerr)
	}
	if rerr := checkTargetCount(req, 1, 1); rerr != nil {
		return engine.Reject(rerr)
	}
	targets, rerr := resolveTargets(req, snap)
	if rerr != nil {
		return engine.Reject(rerr)
	}
	if !targets[0].HasCondition(payload.Condition) {
		return engine.Reject(apperrors.WithMetadata(
			apperrors.CodeConditionNotPresent,
			fmt.Sprintf("%s is not %s", targets[0].Name, payload.Condition),
			map[string]string{"ActorID": targets[0].ID, "Condition": payload.Condition},
		))
	}
	if rerr := checkEconomy(snap, actor.ID, economy.Action); rerr != nil {
		return engine.Reject(rerr)
	}
	return engine.Accept(economyCost(economy.Action))
}

// Execute spends the action and clears the condition on the draft.
func (h *RemoveCondition) Execute(ctx context.Context, req engine.Request, env *engine.Env) error {
	var payload RemoveConditionPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return fault(apperrors.CodeActionPayloadInvalid, "condition removal payload does not decode", nil)
	}

	actor, ok := env.Draft.Actor(req.ActorID)
	if !ok {
		return fault(apperrors.CodeActorNotFound, fmt.Sprintf("actor %s vanished before execution", req.ActorID), map[string]string{"ActorID": req.ActorID})
	}
	if len(req.TargetTokenIDs) != 1 {
		return fault(apperrors.CodeTargetCountInvalid, "condition removal needs exactly one target", nil)
	}
	target, ok := env.Draft.ActorByToken(req.TargetTokenIDs[0])
	if !ok {
		return fault(apperrors.CodeTargetNotFound, fmt.Sprintf("target token %s vanished before execution", req.TargetTokenIDs[0]), map[string]string{"TokenID": req.TargetTokenIDs[0]})
	}

	env.Draft.ConsumeEconomy(actor.ID, economy.Action, "condition:"+payload.Condition)

	if err := env.Draft.RemoveCondition(target.ID, payload.Condition); err != nil {
		return err
	}
	env.Notify(engine.EventConditionRemoved, actor.Name, target.Name, map[string]string{
		"Condition": payload.Condition,
	})
	return nil
}
