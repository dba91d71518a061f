package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.MustParse("pt-BR")

	message.SetString(lang, "combat.generic", "Algo acontece na mesa.")
	message.SetString(lang, "combat.spell_cast", "%s conjura %s em %s.")
	message.SetString(lang, "combat.spell_cast_ritual", "%s conjura %s como ritual.")
	message.SetString(lang, "combat.attack_hit", "%s acerta %s (%s contra CA %s).")
	message.SetString(lang, "combat.attack_crit", "%s acerta um golpe crítico em %s!")
	message.SetString(lang, "combat.attack_missed", "%s erra %s (%s contra CA %s).")
	message.SetString(lang, "combat.attack_no_roll", "O ataque de %s contra %s ficou sem resposta.")
	message.SetString(lang, "combat.save_passed", "%s resiste (%s contra CD %s).")
	message.SetString(lang, "combat.save_failed", "%s falha na resistência (%s contra CD %s).")
	message.SetString(lang, "combat.save_no_roll", "%s não rolou a resistência (CD %s).")
	message.SetString(lang, "combat.damage_applied", "%s sofre %s de dano de %s (%s PV restantes).")
	message.SetString(lang, "combat.damage_applied_untyped", "%s sofre %s de dano (%s PV restantes).")
	message.SetString(lang, "combat.damage_skipped", "A rolagem de dano de %s ficou sem resposta; nada acontece.")
	message.SetString(lang, "combat.condition_added", "%s agora está %s.")
	message.SetString(lang, "combat.condition_removed", "%s não está mais %s.")
	message.SetString(lang, "combat.actor_downed", "%s cai!")
	message.SetString(lang, "combat.action_failed", "A ação de %s falhou: %s")

	message.SetString(lang, "chat.system_label", "sistema")
}
