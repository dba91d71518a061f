package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "combat.generic", defaultGenericLine)
	message.SetString(lang, "combat.spell_cast", "%s casts %s at %s.")
	message.SetString(lang, "combat.spell_cast_ritual", "%s casts %s as a ritual.")
	message.SetString(lang, "combat.attack_hit", "%s hits %s (%s vs AC %s).")
	message.SetString(lang, "combat.attack_crit", "%s lands a critical hit on %s!")
	message.SetString(lang, "combat.attack_missed", "%s misses %s (%s vs AC %s).")
	message.SetString(lang, "combat.attack_no_roll", "%s's attack on %s goes unresolved.")
	message.SetString(lang, "combat.save_passed", "%s holds firm (%s vs DC %s).")
	message.SetString(lang, "combat.save_failed", "%s fails the save (%s vs DC %s).")
	message.SetString(lang, "combat.save_no_roll", "%s never rolls the save (DC %s).")
	message.SetString(lang, "combat.damage_applied", "%s takes %s %s damage (%s HP left).")
	message.SetString(lang, "combat.damage_applied_untyped", "%s takes %s damage (%s HP left).")
	message.SetString(lang, "combat.damage_skipped", "%s's damage roll went unanswered; nothing lands.")
	message.SetString(lang, "combat.condition_added", "%s is now %s.")
	message.SetString(lang, "combat.condition_removed", "%s is no longer %s.")
	message.SetString(lang, "combat.actor_downed", "%s goes down!")
	message.SetString(lang, "combat.action_failed", "%s's action failed: %s")

	message.SetString(lang, "chat.system_label", "system")
}
