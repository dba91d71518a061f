// Package errors provides structured error handling for the Hearth services.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request/binding errors
	CodeActionUnknown        Code = "ACTION_UNKNOWN"
	CodeActionPayloadInvalid Code = "ACTION_PAYLOAD_INVALID"
	CodeActorNotFound        Code = "ACTOR_NOT_FOUND"
	CodeTokenNotFound        Code = "TOKEN_NOT_FOUND"
	CodeTokenActorMismatch   Code = "TOKEN_ACTOR_MISMATCH"
	CodeActorNotControlled   Code = "ACTOR_NOT_CONTROLLED"
	CodeActorIncapacitated   Code = "ACTOR_INCAPACITATED"
	CodeTargetNotFound       Code = "TARGET_NOT_FOUND"
	CodeTargetCountInvalid   Code = "TARGET_COUNT_INVALID"

	// Spellcasting errors
	CodeSpellUnknown          Code = "SPELL_UNKNOWN"
	CodeSpellNotKnown         Code = "SPELL_NOT_KNOWN"
	CodeSpellLevelInvalid     Code = "SPELL_LEVEL_INVALID"
	CodeSpellSlotUnavailable  Code = "SPELL_SLOT_UNAVAILABLE"
	CodeSpellSlotSpent        Code = "SPELL_SLOT_SPENT"
	CodeSpellComponentBlocked Code = "SPELL_COMPONENT_BLOCKED"
	CodeBonusSpellConflict    Code = "BONUS_ACTION_SPELL_CONFLICT"

	// Weapon errors
	CodeWeaponUnknown Code = "WEAPON_UNKNOWN"
	CodeWeaponNotHeld Code = "WEAPON_NOT_HELD"

	// Condition errors
	CodeConditionUnknown    Code = "CONDITION_UNKNOWN"
	CodeConditionNotPresent Code = "CONDITION_NOT_PRESENT"

	// Action economy errors
	CodeEconomyExhausted Code = "ACTION_ECONOMY_EXHAUSTED"
	CodeEconomyInvalid   Code = "ACTION_ECONOMY_INVALID"

	// Execution/draft errors
	CodeDraftInProgress   Code = "DRAFT_IN_PROGRESS"
	CodeSessionClosed     Code = "SESSION_CLOSED"
	CodeActionQueueFull   Code = "ACTION_QUEUE_FULL"
	CodeApprovalDenied    Code = "APPROVAL_DENIED"
	CodeApprovalTimeout   Code = "APPROVAL_TIMEOUT"
	CodeEncounterInactive Code = "ENCOUNTER_INACTIVE"

	// Roll correlation errors. A roll that merely times out is not an
	// error: the workflow records the timeout and moves on.
	CodeRollAbandoned          Code = "ROLL_ABANDONED"
	CodeRollUnknownCorrelation Code = "ROLL_UNKNOWN_CORRELATION"
	CodeRollInvalid            Code = "ROLL_INVALID"

	// Dice errors
	CodeDiceMissing           Code = "DICE_MISSING"
	CodeDiceInvalidSpec       Code = "DICE_INVALID_SPEC"
	CodeDiceInvalidExpression Code = "DICE_INVALID_EXPRESSION"

	// Join/auth errors
	CodeJoinTokenInvalid  Code = "JOIN_TOKEN_INVALID"
	CodeJoinTokenExpired  Code = "JOIN_TOKEN_EXPIRED"
	CodeJoinTokenMismatch Code = "JOIN_TOKEN_MISMATCH"
	CodeRoleForbidden     Code = "ROLE_FORBIDDEN"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// WireCategory groups domain codes into the coarse categories carried on
// websocket error frames. Clients branch on the category; the domain code
// rides along in the frame details.
type WireCategory string

const (
	WireInvalidArgument    WireCategory = "INVALID_ARGUMENT"
	WireFailedPrecondition WireCategory = "FAILED_PRECONDITION"
	WireNotFound           WireCategory = "NOT_FOUND"
	WireForbidden          WireCategory = "FORBIDDEN"
	WireResourceExhausted  WireCategory = "RESOURCE_EXHAUSTED"
	WireUnavailable        WireCategory = "UNAVAILABLE"
	WireInternal           WireCategory = "INTERNAL"
)

// Wire maps a domain code to its websocket error category.
func (c Code) Wire() WireCategory {
	switch c {
	case CodeActionUnknown,
		CodeActionPayloadInvalid,
		CodeTargetCountInvalid,
		CodeSpellLevelInvalid,
		CodeEconomyInvalid,
		CodeConditionUnknown,
		CodeDiceMissing,
		CodeDiceInvalidSpec,
		CodeDiceInvalidExpression,
		CodeRollInvalid:
		return WireInvalidArgument

	case CodeSpellNotKnown,
		CodeSpellSlotUnavailable,
		CodeSpellSlotSpent,
		CodeSpellComponentBlocked,
		CodeBonusSpellConflict,
		CodeWeaponNotHeld,
		CodeConditionNotPresent,
		CodeEconomyExhausted,
		CodeActorIncapacitated,
		CodeDraftInProgress,
		CodeApprovalDenied,
		CodeApprovalTimeout,
		CodeEncounterInactive:
		return WireFailedPrecondition

	case CodeActorNotFound,
		CodeTokenNotFound,
		CodeTargetNotFound,
		CodeSpellUnknown,
		CodeWeaponUnknown,
		CodeRollUnknownCorrelation,
		CodeNotFound:
		return WireNotFound

	case CodeTokenActorMismatch,
		CodeActorNotControlled,
		CodeJoinTokenInvalid,
		CodeJoinTokenExpired,
		CodeJoinTokenMismatch,
		CodeRoleForbidden:
		return WireForbidden

	case CodeActionQueueFull:
		return WireResourceExhausted

	case CodeSessionClosed,
		CodeRollAbandoned:
		return WireUnavailable

	default:
		return WireInternal
	}
}
