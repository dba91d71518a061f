package actions

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hearthvtt/hearth/internal/game/dice"
	"github.com/hearthvtt/hearth/internal/game/dnd5e"
	"github.com/hearthvtt/hearth/internal/game/engine"
	"github.com/hearthvtt/hearth/internal/game/rollmux"
	"github.com/hearthvtt/hearth/internal/game/state"
)

// attackResult is one target's slice of the attack phase. rolled is false
// when the prompt timed out, which counts as no result rather than a miss
// or a fault.
type attackResult struct {
	outcome dnd5e.AttackOutcome
	rolled  bool
}

func (r attackResult) hit() bool {
	return r.rolled && r.outcome.Hit
}

// rollAttacks issues one d20 prompt per target before awaiting any, then
// resolves each in target order.
func rollAttacks(ctx context.Context, env *engine.Env, attacker state.Actor, targets []state.Actor, bonus int, reason string, breakdown map[string]string) ([]attackResult, error) {
	prompts := make([]rollmux.Prompt, len(targets))
	for i, target := range targets {
		metadata := map[string]string{
			"Bonus":    signed(bonus),
			"TargetAC": strconv.Itoa(target.AC),
		}
		for k, v := range breakdown {
			metadata[k] = v
		}
		prompts[i] = rollmux.Prompt{
			SessionID:  env.SessionID,
			ActorID:    attacker.ID,
			ActorName:  attacker.Name,
			TargetID:   target.ID,
			Kind:       rollmux.KindAttack,
			Expression: rollExpression(bonus),
			Reason:     fmt.Sprintf("%s vs %s", reason, target.Name),
			Metadata:   metadata,
		}
	}

	outcomes, err := env.Rolls.SendGroup(ctx, prompts)
	if err != nil {
		return nil, err
	}

	results := make([]attackResult, len(targets))
	for i, outcome := range outcomes {
		target := targets[i]
		if outcome.TimedOut {
			env.Notify(engine.EventAttackNoRoll, attacker.Name, target.Name, nil)
			continue
		}
		natural := outcome.Natural()
		resolved := dnd5e.ResolveAttack(natural, outcome.Total-natural, target.AC)
		results[i] = attackResult{outcome: resolved, rolled: true}

		detail := map[string]string{
			"Total":   strconv.Itoa(resolved.Total),
			"Natural": strconv.Itoa(natural),
			"AC":      strconv.Itoa(target.AC),
		}
		switch {
		case resolved.Critical:
			env.Notify(engine.EventAttackCrit, attacker.Name, target.Name, detail)
		case resolved.Hit:
			env.Notify(engine.EventAttackHit, attacker.Name, target.Name, detail)
		default:
			env.Notify(engine.EventAttackMissed, attacker.Name, target.Name, detail)
		}
	}
	return results, nil
}

func anyHit(results []attackResult) bool {
	for _, r := range results {
		if r.hit() {
			return true
		}
	}
	return false
}

// saveResult is one target's slice of the saving-throw phase.
type saveResult struct {
	passed bool
	rolled bool
}

// saveBonus is the target's saving-throw modifier: the ability modifier
// plus proficiency when the stat block or sheet lists "save:<ability>".
func saveBonus(target state.Actor, ability dnd5e.Ability) int {
	bonus := target.Scores.Modifier(ability)
	if target.HasProficiency("save:" + string(ability)) {
		bonus += target.Proficiency()
	}
	return bonus
}

// rollSaves prompts every target for a saving throw against the given DC
// in the same dispatch-then-await-all pattern as attacks. The target's
// controller rolls, not the caster's.
func rollSaves(ctx context.Context, env *engine.Env, caster state.Actor, targets []state.Actor, ability dnd5e.Ability, dc int) ([]saveResult, error) {
	prompts := make([]rollmux.Prompt, len(targets))
	for i, target := range targets {
		bonus := saveBonus(target, ability)
		prompts[i] = rollmux.Prompt{
			SessionID:  env.SessionID,
			ActorID:    target.ID,
			ActorName:  target.Name,
			TargetID:   target.ID,
			Kind:       rollmux.KindSave,
			Expression: rollExpression(bonus),
			Reason:     fmt.Sprintf("%s save vs DC %d", ability, dc),
			Metadata: map[string]string{
				"Ability": string(ability),
				"DC":      strconv.Itoa(dc),
				"Bonus":   signed(bonus),
			},
		}
	}

	outcomes, err := env.Rolls.SendGroup(ctx, prompts)
	if err != nil {
		return nil, err
	}

	results := make([]saveResult, len(targets))
	for i, outcome := range outcomes {
		target := targets[i]
		if outcome.TimedOut {
			env.Notify(engine.EventSaveNoRoll, caster.Name, target.Name, map[string]string{
				"DC": strconv.Itoa(dc),
			})
			continue
		}
		passed := outcome.Total >= dc
		results[i] = saveResult{passed: passed, rolled: true}

		detail := map[string]string{
			"Total": strconv.Itoa(outcome.Total),
			"DC":    strconv.Itoa(dc),
		}
		if passed {
			env.Notify(engine.EventSavePassed, caster.Name, target.Name, detail)
		} else {
			env.Notify(engine.EventSaveFailed, caster.Name, target.Name, detail)
		}
	}
	return results, nil
}

// damageAmount applies the per-target gates to the shared damage total.
// A missed or unrolled attack and an unrolled save exclude the target
// entirely; a passed save applies the declared save effect, where "none"
// also excludes. The second return reports whether damage applies at all.
func damageAmount(total int, i int, attacks []attackResult, saves []saveResult, onSave dnd5e.SaveEffect) (int, bool) {
	if attacks != nil {
		if !attacks[i].hit() {
			return 0, false
		}
		return total, true
	}
	if saves != nil {
		if !saves[i].rolled {
			return 0, false
		}
		if saves[i].passed {
			switch onSave {
			case dnd5e.SaveEffectHalf:
				return dnd5e.HalveDamage(total), true
			case dnd5e.SaveEffectNone:
				return 0, false
			}
		}
		return total, true
	}
	return total, true
}

// applyDamage reduces one target's hit points on the draft and emits the
// chat-visible events.
func applyDamage(env *engine.Env, source state.Actor, target state.Actor, amount int, damageType string) error {
	before, after, err := env.Draft.ApplyDamage(target.ID, amount)
	if err != nil {
		return err
	}
	detail := map[string]string{
		"Damage": strconv.Itoa(amount),
		"HP":     strconv.Itoa(after),
	}
	if damageType != "" {
		detail["Type"] = damageType
	}
	env.Notify(engine.EventDamageApplied, source.Name, target.Name, detail)
	if before > 0 && after == 0 {
		env.Notify(engine.EventActorDowned, source.Name, target.Name, nil)
	}
	return nil
}

// rollDamage issues the single shared damage roll. A timeout skips damage
// application entirely; the action still succeeds.
func rollDamage(ctx context.Context, env *engine.Env, roller state.Actor, expr dice.Expression, reason string, metadata map[string]string) (rollmux.Outcome, error) {
	return env.Rolls.Send(ctx, rollmux.Prompt{
		SessionID:  env.SessionID,
		ActorID:    roller.ID,
		ActorName:  roller.Name,
		Kind:       rollmux.KindDamage,
		Expression: expr.String(),
		Reason:     reason,
		Metadata:   metadata,
	})
}
