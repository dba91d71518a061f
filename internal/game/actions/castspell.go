package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hearthvtt/hearth/internal/game/dice"
	"github.com/hearthvtt/hearth/internal/game/dnd5e"
	"github.com/hearthvtt/hearth/internal/game/economy"
	"github.com/hearthvtt/hearth/internal/game/engine"
	"github.com/hearthvtt/hearth/internal/game/state"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
)

// CastSpellPayload is the action payload for a spell cast. SlotLevel
// upcasts when above the spell's base level and defaults to the base
// level when zero; Ritual casts without a slot or an economy cost.
type CastSpellPayload struct {
	SpellID   string `json:"spell_id"`
	SlotLevel int    `json:"slot_level,omitempty"`
	Ritual    bool   `json:"ritual,omitempty"`
}

// CastSpell resolves a spell through the phased workflow: spend the slot
// and the economy cost, roll any spell attacks, roll any saving throws,
// roll damage once for every target, then apply damage and conditions.
type CastSpell struct {
	compendium Compendium
}

// NewCastSpell builds the spell.cast handler against a compendium.
func NewCastSpell(compendium Compendium) *CastSpell {
	return &CastSpell{compendium: compendium}
}

var _ engine.Handler = (*CastSpell)(nil)

func (h *CastSpell) Type() string {
	return TypeCastSpell
}

func (h *CastSpell) Priority() int {
	return 0
}

// ApprovalMessage describes the cast for a GM approval prompt.
func (h *CastSpell) ApprovalMessage(req engine.Request, snap state.Snapshot) string {
	var payload CastSpellPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return "cast a spell"
	}
	name := payload.SpellID
	if spell, ok := h.compendium.Spell(payload.SpellID); ok {
		name = spell.Name
	}
	actor, ok := snap.Actor(req.ActorID)
	if !ok {
		return fmt.Sprintf("cast %s", name)
	}
	targets, err := resolveTargets(req, snap)
	if err != nil || len(targets) == 0 {
		return fmt.Sprintf("%s wants to cast %s", actor.Name, name)
	}
	return fmt.Sprintf("%s wants to cast %s at %s", actor.Name, name, targetNames(targets))
}

// Validate checks the cast against a snapshot. Resolution failures stop
// the walk; once the actor and the spell resolve, the independent gates
// accumulate so the caller sees every problem at once.
func (h *CastSpell) Validate(req engine.Request, snap state.Snapshot) engine.Verdict {
	var payload CastSpellPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return engine.Reject(apperrors.New(
			apperrors.CodeActionPayloadInvalid,
			"spell cast payload does not decode",
		))
	}
	if payload.SpellID == "" {
		return engine.Reject(apperrors.New(
			apperrors.CodeActionPayloadInvalid,
			"spell cast payload missing spell_id",
		))
	}

	actor, rerr := resolveActor(req, snap)
	if rerr != nil {
		return engine.Reject(rerr)
	}
	if rerr := checkCanAct(actor); rerr != nil {
		return engine.Reject(rerr)
	}

	spell, ok := h.compendium.Spell(payload.SpellID)
	if !ok {
		return engine.Reject(apperrors.WithMetadata(
			apperrors.CodeSpellUnknown,
			fmt.Sprintf("spell %s not in compendium", payload.SpellID),
			map[string]string{"SpellID": payload.SpellID},
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
	if !sheet.KnowsSpell(spell.ID) {
		return engine.Reject(apperrors.WithMetadata(
			apperrors.CodeSpellNotKnown,
			fmt.Sprintf("%s does not know %s", actor.Name, spell.Name),
			map[string]string{"ActorID": actor.ID, "SpellID": spell.ID},
		))
	}

	var rejections []*apperrors.Error
	reject := func(rerr *apperrors.Error) {
		rejections = append(rejections, rerr)
	}

	if spell.Verbal && actor.HasCondition(string(dnd5e.ConditionSilenced)) {
		reject(apperrors.WithMetadata(
			apperrors.CodeSpellComponentBlocked,
			fmt.Sprintf("%s cannot cast %s while silenced", actor.Name, spell.Name),
			map[string]string{"ActorID": actor.ID, "SpellID": spell.ID, "Component": "verbal"},
		))
	}

	if payload.Ritual {
		switch {
		case !spell.Ritual:
			reject(apperrors.WithMetadata(
				apperrors.CodeActionPayloadInvalid,
				fmt.Sprintf("%s is not a ritual spell", spell.Name),
				map[string]string{"SpellID": spell.ID},
			))
		case payload.SlotLevel != 0:
			reject(apperrors.New(
				apperrors.CodeActionPayloadInvalid,
				"ritual casting does not use a spell slot",
			))
		}
	}

	if rerr := checkTargetCount(req, 1, spell.TargetLimit()); rerr != nil {
		reject(rerr)
	} else if _, rerr := resolveTargets(req, snap); rerr != nil {
		reject(rerr)
	}

	slotLevel := effectiveSlotLevel(spell, payload)
	switch {
	case spell.Cantrip() && payload.SlotLevel != 0:
		reject(apperrors.WithMetadata(
			apperrors.CodeSpellLevelInvalid,
			fmt.Sprintf("%s is a cantrip and takes no slot", spell.Name),
			map[string]string{"SpellID": spell.ID, "SlotLevel": strconv.Itoa(payload.SlotLevel)},
		))
	case payload.SlotLevel < 0 || payload.SlotLevel > 9 || (!spell.Cantrip() && !payload.Ritual && slotLevel < spell.Level):
		reject(apperrors.WithMetadata(
			apperrors.CodeSpellLevelInvalid,
			fmt.Sprintf("%s cannot be cast from a level %d slot", spell.Name, payload.SlotLevel),
			map[string]string{"SpellID": spell.ID, "SlotLevel": strconv.Itoa(payload.SlotLevel)},
		))
	case !spell.Cantrip() && !payload.Ritual && !sheet.SlotAvailable(slotLevel):
		reject(apperrors.WithMetadata(
			apperrors.CodeSpellSlotUnavailable,
			fmt.Sprintf("%s has no level %d slot left", actor.Name, slotLevel),
			map[string]string{"ActorID": actor.ID, "SlotLevel": strconv.Itoa(slotLevel)},
		))
	}

	if !payload.Ritual {
		kind := economyKind(spell.CastingTime)
		if rerr := checkEconomy(snap, actor.ID, kind); rerr != nil {
			reject(rerr)
		}
		if rerr := checkBonusSpellConflict(snap, actor, kind, slotLevel); rerr != nil {
			reject(rerr)
		}
	}

	if len(rejections) > 0 {
		return engine.Reject(rejections...)
	}

	var costs []engine.ResourceCost
	if !payload.Ritual {
		costs = append(costs, economyCost(economyKind(spell.CastingTime)))
	}
	if slotLevel > 0 {
		costs = append(costs, slotCost(slotLevel))
	}
	return engine.Accept(costs...)
}

// Execute drives the cast against the draft. Resources go first: the
// economy slot and the spell slot are spent before the first suspension
// and stay spent even if every roll after them times out.
func (h *CastSpell) Execute(ctx context.Context, req engine.Request, env *engine.Env) error {
	var payload CastSpellPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return fault(apperrors.CodeActionPayloadInvalid, "spell cast payload does not decode", nil)
	}
	spell, ok := h.compendium.Spell(payload.SpellID)
	if !ok {
		return fault(apperrors.CodeSpellUnknown, fmt.Sprintf("spell %s not in compendium", payload.SpellID), map[string]string{"SpellID": payload.SpellID})
	}

	caster, ok := env.Draft.Actor(req.ActorID)
	if !ok {
		return fault(apperrors.CodeActorNotFound, fmt.Sprintf("actor %s vanished before execution", req.ActorID), map[string]string{"ActorID": req.ActorID})
	}
	targets := make([]state.Actor, 0, len(req.TargetTokenIDs))
	for _, tokenID := range req.TargetTokenIDs {
		target, ok := env.Draft.ActorByToken(tokenID)
		if !ok {
			return fault(apperrors.CodeTargetNotFound, fmt.Sprintf("target token %s vanished before execution", tokenID), map[string]string{"TokenID": tokenID})
		}
		targets = append(targets, target)
	}

	sheet, err := dnd5e.DecodeSheet(caster.Rules)
	if err != nil {
		return fault(apperrors.CodeActionPayloadInvalid, fmt.Sprintf("%s has no readable character sheet", caster.Name), map[string]string{"ActorID": caster.ID})
	}

	slotLevel := effectiveSlotLevel(spell, payload)
	if !payload.Ritual {
		env.Draft.ConsumeEconomy(caster.ID, economyKind(spell.CastingTime), spellTag(slotLevel))
	}
	if slotLevel > 0 {
		spent, err := sheet.SpendSlot(slotLevel)
		if err != nil {
			return fault(apperrors.CodeSpellSlotSpent, fmt.Sprintf("%s: level %d slot gone before execution", caster.Name, slotLevel), map[string]string{"ActorID": caster.ID, "SlotLevel": strconv.Itoa(slotLevel)})
		}
		rules, err := spent.Encode()
		if err != nil {
			return fault(apperrors.CodeUnknown, "encode character sheet", nil)
		}
		if err := env.Draft.SetRules(caster.ID, rules); err != nil {
			return err
		}
	}

	detail := map[string]string{"Spell": spell.Name, "Level": strconv.Itoa(slotLevel)}
	if payload.Ritual {
		detail["Ritual"] = "true"
	}
	env.Notify(engine.EventSpellCast, caster.Name, targetNames(targets), detail)

	castingMod := caster.Scores.Modifier(sheet.SpellcastingAbility)
	proficiency := caster.Proficiency()

	var attacks []attackResult
	if spell.AttackRoll {
		bonus := dnd5e.SpellAttackBonus(proficiency, castingMod)
		attacks, err = rollAttacks(ctx, env, caster, targets, bonus, spell.Name, map[string]string{"Spell": spell.Name})
		if err != nil {
			return err
		}
		if !anyHit(attacks) && spell.Save == nil {
			return nil
		}
	}

	var saves []saveResult
	var onSave dnd5e.SaveEffect
	if spell.Save != nil {
		onSave = spell.Save.OnSave
		dc := dnd5e.SpellSaveDC(proficiency, castingMod)
		saves, err = rollSaves(ctx, env, caster, targets, spell.Save.Ability, dc)
		if err != nil {
			return err
		}
	}

	if spell.Damage != nil {
		expr, err := dice.ParseExpression(spell.Damage.Expression)
		if err != nil {
			return fault(apperrors.CodeDiceInvalidExpression, fmt.Sprintf("spell %s has a bad damage expression", spell.ID), map[string]string{"SpellID": spell.ID, "Expression": spell.Damage.Expression})
		}
		if critDoubles(attacks) {
			expr = expr.Doubled()
		}
		outcome, err := rollDamage(ctx, env, caster, expr, fmt.Sprintf("%s damage", spell.Name), map[string]string{
			"Spell": spell.Name,
			"Type":  spell.Damage.Type,
		})
		if err != nil {
			return err
		}
		if outcome.TimedOut {
			env.Notify(engine.EventDamageSkipped, caster.Name, targetNames(targets), map[string]string{
				"Spell":      spell.Name,
				"Expression": expr.String(),
			})
		} else {
			for i, target := range targets {
				amount, apply := damageAmount(outcome.Total, i, attacks, saves, onSave)
				if !apply {
					continue
				}
				if err := applyDamage(env, caster, target, amount, spell.Damage.Type); err != nil {
					return err
				}
			}
		}
	}

	for i, target := range targets {
		if !targetAffected(i, attacks, saves) {
			continue
		}
		for _, condition := range spell.Conditions {
			if err := env.Draft.AddCondition(target.ID, string(condition)); err != nil {
				return err
			}
			env.Notify(engine.EventConditionAdded, caster.Name, target.Name, map[string]string{
				"Condition": string(condition),
				"Spell":     spell.Name,
			})
		}
	}
	return nil
}

// effectiveSlotLevel resolves the slot a cast burns: zero for cantrips
// and rituals, the spell's base level when the payload does not upcast.
func effectiveSlotLevel(spell dnd5e.Spell, payload CastSpellPayload) int {
	if spell.Cantrip() || payload.Ritual {
		return 0
	}
	if payload.SlotLevel == 0 {
		return spell.Level
	}
	return payload.SlotLevel
}

// checkBonusSpellConflict enforces the one-leveled-spell-per-turn rule:
// a leveled spell cast as a bonus action blocks a leveled action spell
// the same turn, and the other way around. The ledger tags record the
// slot level of every cast, so the check is a tag scan.
func checkBonusSpellConflict(snap state.Snapshot, actor state.Actor, kind economy.Kind, slotLevel int) *apperrors.Error {
	if slotLevel == 0 {
		return nil
	}
	var opposite economy.Kind
	switch kind {
	case economy.Action:
		opposite = economy.BonusAction
	case economy.BonusAction:
		opposite = economy.Action
	default:
		return nil
	}
	for _, entry := range snap.EconomyEntries(actor.ID) {
		if entry.Kind == opposite && isLeveledSpellTag(entry.Tag) {
			return apperrors.WithMetadata(
				apperrors.CodeBonusSpellConflict,
				fmt.Sprintf("%s already cast a leveled spell with their %s this turn", actor.Name, opposite),
				map[string]string{"ActorID": actor.ID, "Kind": string(opposite), "Tag": entry.Tag},
			)
		}
	}
	return nil
}

// critDoubles reports whether the shared damage roll uses doubled dice:
// the attack phase hit exactly one target and that hit was critical. A
// roll shared across several hit targets keeps its base dice.
func critDoubles(attacks []attackResult) bool {
	hits := 0
	crit := false
	for _, r := range attacks {
		if r.hit() {
			hits++
			crit = r.outcome.Critical
		}
	}
	return hits == 1 && crit
}

// targetAffected reports whether the target is subject to the spell's
// lingering effects: it was hit, or it rolled and failed its save, or
// the spell gates on neither.
func targetAffected(i int, attacks []attackResult, saves []saveResult) bool {
	if attacks != nil {
		return attacks[i].hit()
	}
	if saves != nil {
		return saves[i].rolled && !saves[i].passed
	}
	return true
}
