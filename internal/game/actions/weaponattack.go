package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hearthvtt/hearth/internal/game/dice"
	"github.com/hearthvtt/hearth/internal/game/dnd5e"
	"github.com/hearthvtt/hearth/internal/game/economy"
	"github.com/hearthvtt/hearth/internal/game/engine"
	"github.com/hearthvtt/hearth/internal/game/state"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
)

// WeaponAttackPayload is the action payload for a weapon attack.
type WeaponAttackPayload struct {
	WeaponID string `json:"weapon_id"`
}

// WeaponAttack resolves a single-target weapon attack: one attack roll,
// then one damage roll when it lands. A miss ends the workflow with no
// damage prompt at all.
type WeaponAttack struct {
	compendium Compendium
}

// NewWeaponAttack builds the weapon.attack handler against a compendium.
func NewWeaponAttack(compendium Compendium) *WeaponAttack {
	return &WeaponAttack{compendium: compendium}
}

var _ engine.Handler = (*WeaponAttack)(nil)

func (h *WeaponAttack) Type() string {
	return TypeWeaponAttack
}

func (h *WeaponAttack) Priority() int {
	return 0
}

// ApprovalMessage describes the attack for a GM approval prompt.
func (h *WeaponAttack) ApprovalMessage(req engine.Request, snap state.Snapshot) string {
	var payload WeaponAttackPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return "make a weapon attack"
	}
	name := payload.WeaponID
	if weapon, ok := h.compendium.Weapon(payload.WeaponID); ok {
		name = weapon.Name
	}
	actor, ok := snap.Actor(req.ActorID)
	if !ok {
		return fmt.Sprintf("attack with %s", name)
	}
	targets, err := resolveTargets(req, snap)
	if err != nil || len(targets) == 0 {
		return fmt.Sprintf("%s wants to attack with %s", actor.Name, name)
	}
	return fmt.Sprintf("%s wants to attack %s with %s", actor.Name, targetNames(targets), name)
}

// Validate checks the attack against a snapshot.
func (h *WeaponAttack) Validate(req engine.Request, snap state.Snapshot) engine.Verdict {
	var payload WeaponAttackPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return engine.Reject(apperrors.New(
			apperrors.CodeActionPayloadInvalid,
			"weapon attack payload does not decode",
		))
	}
	if payload.WeaponID == "" {
		return engine.Reject(apperrors.New(
			apperrors.CodeActionPayloadInvalid,
			"weapon attack payload missing weapon_id",
		))
	}

	actor, rerr := resolveActor(req, snap)
	if rerr != nil {
		return engine.Reject(rerr)
	}
	if rerr := checkCanAct(actor); rerr != nil {
		return engine.Reject(rerr)
	}

	weapon, ok := h.compendium.Weapon(payload.WeaponID)
	if !ok {
		return engine.Reject(apperrors.WithMetadata(
			apperrors.CodeWeaponUnknown,
			fmt.Sprintf("weapon %s not in compendium", payload.WeaponID),
			map[string]string{"WeaponID": payload.WeaponID},
		))
	}

	sheet, err := dnd5e.DecodeSheet(actor.Rules)
	if err != nil {
		return engine.Reject(apperrors.WithMetadata(
			apperrors.CodeActionPayloadInvalid,
			fmt.Sprintf("%s has no readable character sheet", actor.Name),
			map[string]string{"ActorID": actor.ID},
		))
	}
	if !sheet.HasWeapon(weapon.ID) {
		return engine.Reject(apperrors.WithMetadata(
			apperrors.CodeWeaponNotHeld,
			fmt.Sprintf("%s does not carry %s", actor.Name, weapon.Name),
			map[string]string{"ActorID": actor.ID, "WeaponID": weapon.ID},
		))
	}

	var rejections []*apperrors.Error
	if rerr := checkTargetCount(req, 1, 1); rerr != nil {
		rejections = append(rejections, rerr)
	} else if _, rerr := resolveTargets(req, snap); rerr != nil {
		rejections = append(rejections, rerr)
	}
	if rerr := checkEconomy(snap, actor.ID, economy.Action); rerr != nil {
		rejections = append(rejections, rerr)
	}

	if len(rejections) > 0 {
		return engine.Reject(rejections...)
	}
	return engine.Accept(economyCost(economy.Action))
}

// Execute drives the attack against the draft. The action slot is spent
// before the attack prompt goes out and stays spent on a miss.
func (h *WeaponAttack) Execute(ctx context.Context, req engine.Request, env *engine.Env) error {
	var payload WeaponAttackPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return fault(apperrors.CodeActionPayloadInvalid, "weapon attack payload does not decode", nil)
	}
	weapon, ok := h.compendium.Weapon(payload.WeaponID)
	if !ok {
		return fault(apperrors.CodeWeaponUnknown, fmt.Sprintf("weapon %s not in compendium", payload.WeaponID), map[string]string{"WeaponID": payload.WeaponID})
	}

	attacker, ok := env.Draft.Actor(req.ActorID)
	if !ok {
		return fault(apperrors.CodeActorNotFound, fmt.Sprintf("actor %s vanished before execution", req.ActorID), map[string]string{"ActorID": req.ActorID})
	}
	if len(req.TargetTokenIDs) != 1 {
		return fault(apperrors.CodeTargetCountInvalid, "weapon attack needs exactly one target", nil)
	}
	target, ok := env.Draft.ActorByToken(req.TargetTokenIDs[0])
	if !ok {
		return fault(apperrors.CodeTargetNotFound, fmt.Sprintf("target token %s vanished before execution", req.TargetTokenIDs[0]), map[string]string{"TokenID": req.TargetTokenIDs[0]})
	}

	env.Draft.ConsumeEconomy(attacker.ID, economy.Action, weaponTag(weapon.ID))

	ability := dnd5e.AttackAbility(weapon, attacker.Scores)
	abilityMod := attacker.Scores.Modifier(ability)
	bonus := abilityMod
	if attacker.HasProficiency(weapon.ID) {
		bonus += attacker.Proficiency()
	}

	attacks, err := rollAttacks(ctx, env, attacker, []state.Actor{target}, bonus, weapon.Name, map[string]string{
		"Weapon":  weapon.Name,
		"Ability": string(ability),
	})
	if err != nil {
		return err
	}
	if !attacks[0].hit() {
		return nil
	}

	expr, err := dice.ParseExpression(weapon.Damage)
	if err != nil {
		return fault(apperrors.CodeDiceInvalidExpression, fmt.Sprintf("weapon %s has a bad damage expression", weapon.ID), map[string]string{"WeaponID": weapon.ID, "Expression": weapon.Damage})
	}
	if attacks[0].outcome.Critical {
		expr = expr.Doubled()
	}
	expr.Modifier += abilityMod

	outcome, err := rollDamage(ctx, env, attacker, expr, fmt.Sprintf("%s damage", weapon.Name), map[string]string{
		"Weapon": weapon.Name,
		"Type":   weapon.DamageType,
	})
	if err != nil {
		return err
	}
	if outcome.TimedOut {
		env.Notify(engine.EventDamageSkipped, attacker.Name, target.Name, map[string]string{
			"Weapon":     weapon.Name,
			"Expression": expr.String(),
		})
		return nil
	}
	return applyDamage(env, attacker, target, outcome.Total, weapon.DamageType)
}
