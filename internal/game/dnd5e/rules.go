// Package dnd5e implements the fifth-edition rules math used by the table
// engine: ability modifiers, proficiency, attack resolution, save DCs, and
// the narrow sheet view extracted from an actor's rules payload.
package dnd5e

// Ability identifies one of the six ability scores.
type Ability string

const (
	AbilityStrength     Ability = "strength"
	AbilityDexterity    Ability = "dexterity"
	AbilityConstitution Ability = "constitution"
	AbilityIntelligence Ability = "intelligence"
	AbilityWisdom       Ability = "wisdom"
	AbilityCharisma     Ability = "charisma"
)

// Abilities lists every ability in canonical order.
func Abilities() []Ability {
	return []Ability{
		AbilityStrength,
		AbilityDexterity,
		AbilityConstitution,
		AbilityIntelligence,
		AbilityWisdom,
		AbilityCharisma,
	}
}

// AbilityScores holds the six raw scores for one actor.
type AbilityScores struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// Score returns the raw score for one ability.
func (s AbilityScores) Score(ability Ability) int {
	switch ability {
	case AbilityStrength:
		return s.Strength
	case AbilityDexterity:
		return s.Dexterity
	case AbilityConstitution:
		return s.Constitution
	case AbilityIntelligence:
		return s.Intelligence
	case AbilityWisdom:
		return s.Wisdom
	case AbilityCharisma:
		return s.Charisma
	default:
		return 0
	}
}

// Modifier returns the derived modifier for one ability.
func (s AbilityScores) Modifier(ability Ability) int {
	return AbilityModifier(s.Score(ability))
}

// AbilityModifier derives the modifier for a raw score: (score-10)/2 rounded
// down, so 7 maps to -2 and 15 maps to +2.
func AbilityModifier(score int) int {
	delta := score - 10
	if delta < 0 {
		delta--
	}
	return delta / 2
}

// ProficiencyBonusForLevel derives a character's proficiency bonus from its
// level: +2 at levels 1-4, +3 at 5-8, and so on.
func ProficiencyBonusForLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return 2 + (level-1)/4
}

// SpellSaveDC derives a caster's spell save DC.
func SpellSaveDC(proficiency, castingModifier int) int {
	return 8 + proficiency + castingModifier
}

// SpellAttackBonus derives a caster's spell attack bonus.
func SpellAttackBonus(proficiency, castingModifier int) int {
	return proficiency + castingModifier
}

// HalveDamage halves a damage total rounding down, so 45 becomes 22.
func HalveDamage(total int) int {
	if total < 0 {
		return 0
	}
	return total / 2
}

// AttackOutcome is the resolved result of one attack roll against one AC.
type AttackOutcome struct {
	Natural  int
	Total    int
	Hit      bool
	Critical bool
	Fumble   bool
}

// ResolveAttack resolves an attack roll. A natural 20 always hits and is a
// critical; a natural 1 always misses regardless of modifiers; any other
// roll hits when natural+bonus meets or beats the target AC.
func ResolveAttack(natural, bonus, targetAC int) AttackOutcome {
	outcome := AttackOutcome{
		Natural: natural,
		Total:   natural + bonus,
	}
	switch {
	case natural >= 20:
		outcome.Hit = true
		outcome.Critical = true
	case natural <= 1:
		outcome.Fumble = true
	default:
		outcome.Hit = outcome.Total >= targetAC
	}
	return outcome
}
