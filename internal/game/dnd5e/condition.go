package dnd5e

// Condition names a status effect an actor can carry. The engine treats
// conditions as opaque markers on the board; this vocabulary is what the
// bundled action handlers know how to apply and remove.
type Condition string

const (
	ConditionBlinded       Condition = "blinded"
	ConditionCharmed       Condition = "charmed"
	ConditionConcentrating Condition = "concentrating"
	ConditionFrightened    Condition = "frightened"
	ConditionGrappled      Condition = "grappled"
	ConditionIncapacitated Condition = "incapacitated"
	ConditionInvisible     Condition = "invisible"
	ConditionParalyzed     Condition = "paralyzed"
	ConditionPoisoned      Condition = "poisoned"
	ConditionProne         Condition = "prone"
	ConditionRestrained    Condition = "restrained"
	ConditionSilenced      Condition = "silenced"
	ConditionStunned       Condition = "stunned"
	ConditionUnconscious   Condition = "unconscious"
)

var knownConditions = map[Condition]struct{}{
	ConditionBlinded:       {},
	ConditionCharmed:       {},
	ConditionConcentrating: {},
	ConditionFrightened:    {},
	ConditionGrappled:      {},
	ConditionIncapacitated: {},
	ConditionInvisible:     {},
	ConditionParalyzed:     {},
	ConditionPoisoned:      {},
	ConditionProne:         {},
	ConditionRestrained:    {},
	ConditionSilenced:      {},
	ConditionStunned:       {},
	ConditionUnconscious:   {},
}

// KnownCondition reports whether name belongs to the condition vocabulary.
func KnownCondition(name string) bool {
	_, ok := knownConditions[Condition(name)]
	return ok
}
