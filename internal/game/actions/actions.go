// Package actions implements the bundled fifth-edition action handlers:
// spell casting, weapon attacks, and condition removal. Each handler
// validates against a snapshot, then drives the phased workflow against
// the draft: spend resources first, roll attacks, roll saves, roll
// damage once for all targets, and apply effects.
package actions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hearthvtt/hearth/internal/game/dnd5e"
	"github.com/hearthvtt/hearth/internal/game/economy"
	"github.com/hearthvtt/hearth/internal/game/engine"
	"github.com/hearthvtt/hearth/internal/game/state"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
)

// Action type strings for the bundled handlers.
const (
	TypeCastSpell       = "spell.cast"
	TypeWeaponAttack    = "weapon.attack"
	TypeRemoveCondition = "condition.remove"
)

// Compendium resolves spell and weapon documents. Lookups must be
// in-memory: validation is synchronous and cannot wait on storage.
type Compendium interface {
	Spell(spellID string) (dnd5e.Spell, bool)
	Weapon(weaponID string) (dnd5e.Weapon, bool)
}

// Register installs the bundled handlers on a registry.
func Register(registry *engine.Registry, compendium Compendium) error {
	handlers := []engine.Handler{
		NewCastSpell(compendium),
		NewWeaponAttack(compendium),
		NewRemoveCondition(),
	}
	for _, handler := range handlers {
		if err := registry.Register(handler); err != nil {
			return err
		}
	}
	return nil
}

// cannotActConditions block every action category outright.
var cannotActConditions = []dnd5e.Condition{
	dnd5e.ConditionIncapacitated,
	dnd5e.ConditionParalyzed,
	dnd5e.ConditionStunned,
	dnd5e.ConditionUnconscious,
}

func checkCanAct(actor state.Actor) *apperrors.Error {
	for _, condition := range cannotActConditions {
		if actor.HasCondition(string(condition)) {
			return apperrors.WithMetadata(
				apperrors.CodeActorIncapacitated,
				fmt.Sprintf("%s cannot act while %s", actor.Name, condition),
				map[string]string{"ActorID": actor.ID, "Condition": string(condition)},
			)
		}
	}
	return nil
}

// resolveActor checks actor resolvability, token binding, and control.
// A token that claims to represent the actor but references a different
// actor id is a hard rejection.
func resolveActor(req engine.Request, snap state.Snapshot) (state.Actor, *apperrors.Error) {
	actor, ok := snap.Actor(req.ActorID)
	if !ok {
		return state.Actor{}, apperrors.WithMetadata(
			apperrors.CodeActorNotFound,
			fmt.Sprintf("actor %s not found", req.ActorID),
			map[string]string{"ActorID": req.ActorID},
		)
	}
	if req.ActorTokenID != "" {
		token, ok := snap.Token(req.ActorTokenID)
		if !ok {
			return state.Actor{}, apperrors.WithMetadata(
				apperrors.CodeTokenNotFound,
				fmt.Sprintf("token %s not found", req.ActorTokenID),
				map[string]string{"TokenID": req.ActorTokenID},
			)
		}
		if token.ActorID != req.ActorID {
			return state.Actor{}, apperrors.WithMetadata(
				apperrors.CodeTokenActorMismatch,
				fmt.Sprintf("token %s does not represent actor %s", req.ActorTokenID, req.ActorID),
				map[string]string{
					"TokenID":      req.ActorTokenID,
					"ActorID":      req.ActorID,
					"TokenActorID": token.ActorID,
				},
			)
		}
	}
	if !req.GM && !actor.Controlled(req.ParticipantID) {
		return state.Actor{}, apperrors.WithMetadata(
			apperrors.CodeActorNotControlled,
			fmt.Sprintf("participant does not control %s", actor.Name),
			map[string]string{"ActorID": actor.ID, "ParticipantID": req.ParticipantID},
		)
	}
	return actor, nil
}

// resolveTargets maps target token ids to actors against a snapshot.
func resolveTargets(req engine.Request, snap state.Snapshot) ([]state.Actor, *apperrors.Error) {
	targets := make([]state.Actor, 0, len(req.TargetTokenIDs))
	for _, tokenID := range req.TargetTokenIDs {
		target, ok := snap.ActorByToken(tokenID)
		if !ok {
			return nil, apperrors.WithMetadata(
				apperrors.CodeTargetNotFound,
				fmt.Sprintf("target token %s does not resolve to an actor", tokenID),
				map[string]string{"TokenID": tokenID},
			)
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func checkTargetCount(req engine.Request, low, high int) *apperrors.Error {
	n := len(req.TargetTokenIDs)
	if n >= low && n <= high {
		return nil
	}
	return apperrors.WithMetadata(
		apperrors.CodeTargetCountInvalid,
		fmt.Sprintf("action needs between %d and %d targets, got %d", low, high, n),
		map[string]string{
			"Min": strconv.Itoa(low),
			"Max": strconv.Itoa(high),
			"Got": strconv.Itoa(n),
		},
	)
}

// economyKind maps a casting time to the slot it spends.
func economyKind(castingTime dnd5e.CastingTime) economy.Kind {
	switch castingTime {
	case dnd5e.CastingTimeBonusAction:
		return economy.BonusAction
	case dnd5e.CastingTimeReaction:
		return economy.Reaction
	default:
		return economy.Action
	}
}

func checkEconomy(snap state.Snapshot, actorID string, kind economy.Kind) *apperrors.Error {
	for _, entry := range snap.EconomyEntries(actorID) {
		if entry.Kind == kind {
			return apperrors.WithMetadata(
				apperrors.CodeEconomyExhausted,
				fmt.Sprintf("%s already spent this turn", kind),
				map[string]string{"ActorID": actorID, "Kind": string(kind), "Tag": entry.Tag},
			)
		}
	}
	return nil
}

// economyCost declares the per-turn slot an accepted action will spend.
func economyCost(kind economy.Kind) engine.ResourceCost {
	return engine.ResourceCost{
		Path:   "economy." + string(kind),
		Amount: 1,
		Store:  engine.CostStoreLedger,
	}
}

// slotCost declares the spell slot an accepted cast will spend.
func slotCost(level int) engine.ResourceCost {
	return engine.ResourceCost{
		Path:   "slots." + strconv.Itoa(level),
		Amount: 1,
		Store:  engine.CostStoreSheet,
	}
}

// spellTag records what a spell cast spent: the economy tag carries the
// slot level so the leveled-spell turn rule can inspect it later.
func spellTag(slotLevel int) string {
	return "spell:" + strconv.Itoa(slotLevel)
}

func weaponTag(weaponID string) string {
	return "weapon:" + weaponID
}

// isLeveledSpellTag reports whether a ledger tag records a slot-consuming
// spell cast.
func isLeveledSpellTag(tag string) bool {
	level, ok := strings.CutPrefix(tag, "spell:")
	if !ok {
		return false
	}
	return level != "0"
}

// fault wraps a structured error for the execution stage: state moved
// between validation and execution, or a roll could not be delivered.
func fault(code apperrors.Code, message string, metadata map[string]string) error {
	if metadata == nil {
		return apperrors.New(code, message)
	}
	return apperrors.WithMetadata(code, message, metadata)
}

func signed(n int) string {
	return fmt.Sprintf("%+d", n)
}

// rollExpression builds the d20 expression for a given bonus, producing
// "1d20+5", "1d20-1", or plain "1d20".
func rollExpression(bonus int) string {
	if bonus == 0 {
		return "1d20"
	}
	return "1d20" + signed(bonus)
}

func targetNames(targets []state.Actor) string {
	names := make([]string, len(targets))
	for i, target := range targets {
		names[i] = target.Name
	}
	return strings.Join(names, ", ")
}
