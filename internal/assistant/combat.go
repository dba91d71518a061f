package assistant

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hearthvtt/hearth/internal/game/dnd5e"
	"github.com/hearthvtt/hearth/internal/game/state"
	"github.com/hearthvtt/hearth/internal/table/storage"
)

// CheckAttackInput represents the MCP tool input for explaining an attack.
type CheckAttackInput struct {
	CampaignID string `json:"campaign_id" jsonschema:"campaign identifier"`
	AttackerID string `json:"attacker_id" jsonschema:"attacking actor identifier"`
	WeaponID   string `json:"weapon_id" jsonschema:"compendium weapon identifier"`
	TargetID   string `json:"target_id" jsonschema:"defending actor identifier"`
	Natural    int    `json:"natural,omitempty" jsonschema:"optional natural d20 result to resolve against the target"`
}

// CheckAttackResult represents the MCP tool output for explaining an attack.
type CheckAttackResult struct {
	Weapon      string         `json:"weapon"`
	Held        bool           `json:"held" jsonschema:"whether the attacker's sheet lists the weapon"`
	Ability     string         `json:"ability" jsonschema:"ability the attack uses: ranged and finesse pick dexterity"`
	AbilityMod  int            `json:"ability_mod"`
	Proficient  bool           `json:"proficient"`
	Proficiency int            `json:"proficiency_bonus,omitempty" jsonschema:"added to the roll when proficient"`
	AttackBonus int            `json:"attack_bonus" jsonschema:"total bonus added to the d20"`
	TargetAC    int            `json:"target_ac"`
	NeededRoll  int            `json:"needed_roll" jsonschema:"lowest natural d20 that hits; 20 means only a natural 20"`
	Damage      string         `json:"damage" jsonschema:"damage expression on a hit"`
	DamageType  string         `json:"damage_type,omitempty"`
	Outcome     *AttackOutcome `json:"outcome,omitempty" jsonschema:"resolution of the supplied natural roll"`
}

// AttackOutcome is the resolution of one supplied natural roll.
type AttackOutcome struct {
	Natural  int  `json:"natural"`
	Total    int  `json:"total"`
	Hit      bool `json:"hit"`
	Critical bool `json:"critical"`
	Fumble   bool `json:"fumble"`
}

// CheckAttackTool defines the MCP tool schema for explaining an attack.
func CheckAttackTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "check_attack",
		Description: "Explains an attack before it happens: which ability applies, the total bonus, and the natural roll needed to hit the target. Optionally resolves a given d20 result.",
	}
}

// CheckAttackHandler executes an attack explanation request.
func CheckAttackHandler(store storage.Stores) mcp.ToolHandlerFor[CheckAttackInput, CheckAttackResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CheckAttackInput) (*mcp.CallToolResult, CheckAttackResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
		defer cancel()

		attacker, err := loadActor(callCtx, store, input.CampaignID, input.AttackerID)
		if err != nil {
			return nil, CheckAttackResult{}, fmt.Errorf("load attacker: %w", err)
		}
		target, err := store.GetActor(callCtx, input.CampaignID, input.TargetID)
		if err != nil {
			return nil, CheckAttackResult{}, fmt.Errorf("load target: %w", err)
		}
		weaponRecord, err := store.GetWeapon(callCtx, input.CampaignID, input.WeaponID)
		if err != nil {
			return nil, CheckAttackResult{}, fmt.Errorf("load weapon: %w", err)
		}
		weapon, err := dnd5e.DecodeWeapon(weaponRecord.Doc)
		if err != nil {
			return nil, CheckAttackResult{}, fmt.Errorf("decode weapon: %w", err)
		}
		sheet, err := dnd5e.DecodeSheet(attacker.Rules)
		if err != nil {
			return nil, CheckAttackResult{}, fmt.Errorf("decode attacker sheet: %w", err)
		}

		ability := dnd5e.AttackAbility(weapon, attacker.Scores)
		abilityMod := attacker.Scores.Modifier(ability)
		proficient := attacker.HasProficiency(weapon.ID)
		bonus := abilityMod
		if proficient {
			bonus += attacker.Proficiency()
		}

		needed := target.AC - bonus
		if needed < 2 {
			needed = 2
		}
		if needed > 20 {
			needed = 20
		}

		result := CheckAttackResult{
			Weapon:      weapon.Name,
			Held:        sheet.HasWeapon(weapon.ID),
			Ability:     string(ability),
			AbilityMod:  abilityMod,
			Proficient:  proficient,
			AttackBonus: bonus,
			TargetAC:    target.AC,
			NeededRoll:  needed,
			Damage:      weapon.Damage,
			DamageType:  weapon.DamageType,
		}
		if proficient {
			result.Proficiency = attacker.Proficiency()
		}
		if input.Natural != 0 {
			outcome := dnd5e.ResolveAttack(input.Natural, bonus, target.AC)
			result.Outcome = &AttackOutcome{
				Natural:  outcome.Natural,
				Total:    outcome.Total,
				Hit:      outcome.Hit,
				Critical: outcome.Critical,
				Fumble:   outcome.Fumble,
			}
		}
		return nil, result, nil
	}
}

// SpellSaveDCInput represents the MCP tool input for a caster's save DC.
type SpellSaveDCInput struct {
	CampaignID string `json:"campaign_id" jsonschema:"campaign identifier"`
	CasterID   string `json:"caster_id" jsonschema:"casting actor identifier"`
}

// SpellSaveDCResult represents the MCP tool output for a caster's save DC.
type SpellSaveDCResult struct {
	Ability     string `json:"ability" jsonschema:"spellcasting ability from the caster's sheet"`
	AbilityMod  int    `json:"ability_mod"`
	Proficiency int    `json:"proficiency_bonus"`
	DC          int    `json:"dc" jsonschema:"8 + proficiency bonus + casting ability modifier"`
	AttackBonus int    `json:"spell_attack_bonus" jsonschema:"proficiency bonus + casting ability modifier"`
}

// SpellSaveDCTool defines the MCP tool schema for a caster's save DC.
func SpellSaveDCTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "spell_save_dc",
		Description: "Computes an actor's spell save DC and spell attack bonus from its sheet.",
	}
}

// SpellSaveDCHandler executes a save DC request.
func SpellSaveDCHandler(store storage.Stores) mcp.ToolHandlerFor[SpellSaveDCInput, SpellSaveDCResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SpellSaveDCInput) (*mcp.CallToolResult, SpellSaveDCResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
		defer cancel()

		caster, err := loadActor(callCtx, store, input.CampaignID, input.CasterID)
		if err != nil {
			return nil, SpellSaveDCResult{}, fmt.Errorf("load caster: %w", err)
		}
		sheet, err := dnd5e.DecodeSheet(caster.Rules)
		if err != nil {
			return nil, SpellSaveDCResult{}, fmt.Errorf("decode caster sheet: %w", err)
		}
		if sheet.SpellcastingAbility == "" {
			return nil, SpellSaveDCResult{}, fmt.Errorf("actor %s has no spellcasting ability", caster.ID)
		}

		castingMod := caster.Scores.Modifier(sheet.SpellcastingAbility)
		proficiency := caster.Proficiency()

		result := SpellSaveDCResult{
			Ability:     string(sheet.SpellcastingAbility),
			AbilityMod:  castingMod,
			Proficiency: proficiency,
			DC:          dnd5e.SpellSaveDC(proficiency, castingMod),
			AttackBonus: dnd5e.SpellAttackBonus(proficiency, castingMod),
		}
		return nil, result, nil
	}
}

// loadActor fetches a stored actor and lifts it into its rules-level
// view so derived values like the proficiency bonus come from one place.
func loadActor(ctx context.Context, store storage.Stores, campaignID, actorID string) (state.Actor, error) {
	record, err := store.GetActor(ctx, campaignID, actorID)
	if err != nil {
		return state.Actor{}, err
	}
	return state.Actor{
		ID:               record.ID,
		Name:             record.Name,
		Kind:             state.ActorKind(record.Kind),
		ControllerID:     record.ControllerID,
		Level:            record.Level,
		AC:               record.AC,
		HP:               record.HP,
		MaxHP:            record.MaxHP,
		ProficiencyBonus: record.ProficiencyBonus,
		Scores:           record.Scores,
		Proficiencies:    record.Proficiencies,
		Conditions:       record.Conditions,
		Rules:            record.Rules,
	}, nil
}
