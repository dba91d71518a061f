package actions

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/hearthvtt/hearth/internal/game/economy"
	"github.com/hearthvtt/hearth/internal/game/engine"
	"github.com/hearthvtt/hearth/internal/game/rollmux"
	"github.com/hearthvtt/hearth/internal/game/state"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
)

func TestWeaponAttackValidate(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, b *battle)
		request  func(t *testing.T) engine.Request
		wantCode apperrors.Code
	}{
		{
			name: "carried weapon and one target",
			request: func(t *testing.T) engine.Request {
				return attackRequest(t, WeaponAttackPayload{WeaponID: "dagger"}, "tok-g1")
			},
		},
		{
			name: "unknown weapon",
			request: func(t *testing.T) engine.Request {
				return attackRequest(t, WeaponAttackPayload{WeaponID: "glaive"}, "tok-g1")
			},
			wantCode: apperrors.CodeWeaponUnknown,
		},
		{
			name: "weapon not carried",
			request: func(t *testing.T) engine.Request {
				return attackRequest(t, WeaponAttackPayload{WeaponID: "shortbow"}, "tok-g1")
			},
			wantCode: apperrors.CodeWeaponNotHeld,
		},
		{
			name: "payload does not decode",
			request: func(t *testing.T) engine.Request {
				req := attackRequest(t, WeaponAttackPayload{WeaponID: "dagger"}, "tok-g1")
				req.Payload = json.RawMessage(`[`)
				return req
			},
			wantCode: apperrors.CodeActionPayloadInvalid,
		},
		{
			name: "payload missing weapon id",
			request: func(t *testing.T) engine.Request {
				return attackRequest(t, WeaponAttackPayload{}, "tok-g1")
			},
			wantCode: apperrors.CodeActionPayloadInvalid,
		},
		{
			name: "two targets",
			request: func(t *testing.T) engine.Request {
				return attackRequest(t, WeaponAttackPayload{WeaponID: "dagger"}, "tok-g1", "tok-g2")
			},
			wantCode: apperrors.CodeTargetCountInvalid,
		},
		{
			name: "no targets",
			request: func(t *testing.T) engine.Request {
				return attackRequest(t, WeaponAttackPayload{WeaponID: "dagger"})
			},
			wantCode: apperrors.CodeTargetCountInvalid,
		},
		{
			name: "action already spent",
			setup: func(t *testing.T, b *battle) {
				b.mutate(t, func(d *state.Draft) {
					d.ConsumeEconomy("aria", economy.Action, "spell:0")
				})
			},
			request: func(t *testing.T) engine.Request {
				return attackRequest(t, WeaponAttackPayload{WeaponID: "dagger"}, "tok-g1")
			},
			wantCode: apperrors.CodeEconomyExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBattle(t, defaultSlots(), nil)
			if tt.setup != nil {
				tt.setup(t, b)
			}

			verdict := b.session.Validate(tt.request(t))
			if tt.wantCode == "" {
				if !verdict.Accepted() {
					t.Fatalf("Validate() rejected: %v", verdict.Rejections)
				}
				return
			}
			if verdict.Accepted() {
				t.Fatalf("Validate() accepted, want rejection %s", tt.wantCode)
			}
			if !hasCode(verdict, tt.wantCode) {
				t.Errorf("Validate() rejections = %v, want code %s", verdict.Rejections, tt.wantCode)
			}
		})
	}
}

func TestWeaponAttackHitDamagesTarget(t *testing.T) {
	b := newBattle(t, defaultSlots(), map[string][][]int{
		"attack/ghoul-1": {{9}},
		"damage/":        {{3}},
	})

	result := b.run(t, attackRequest(t, WeaponAttackPayload{WeaponID: "dagger"}, "tok-g1"))
	if !result.Verdict.Accepted() || result.Err != nil {
		t.Fatalf("attack failed: verdict = %v, err = %v", result.Verdict.Rejections, result.Err)
	}

	// Finesse dagger rides Aria's Dexterity: +2 ability, +3 proficiency.
	attacks := b.roller.sent(rollmux.KindAttack)
	if len(attacks) != 1 || attacks[0].Expression != "1d20+5" {
		t.Fatalf("attack prompts = %v, want one 1d20+5", attacks)
	}

	// 9 + 5 = 14 against AC 12; damage 3 + 2 = 5.
	if hp := b.actorHP(t, "ghoul-1"); hp != 17 {
		t.Errorf("ghoul HP = %d, want 17", hp)
	}
	entries := b.table.Snapshot().EconomyEntries("aria")
	if len(entries) != 1 || entries[0].Kind != economy.Action || entries[0].Tag != "weapon:dagger" {
		t.Errorf("economy entries = %v, want one action tagged weapon:dagger", entries)
	}

	wantKinds := []engine.EventKind{engine.EventAttackHit, engine.EventDamageApplied}
	if got := b.notifier.kinds(); !slices.Equal(got, wantKinds) {
		t.Errorf("event kinds = %v, want %v", got, wantKinds)
	}
}

func TestWeaponAttackMissEndsWorkflow(t *testing.T) {
	b := newBattle(t, defaultSlots(), map[string][][]int{
		"attack/ghoul-1": {{4}},
	})

	result := b.run(t, attackRequest(t, WeaponAttackPayload{WeaponID: "dagger"}, "tok-g1"))
	if !result.Verdict.Accepted() || result.Err != nil {
		t.Fatalf("attack failed: verdict = %v, err = %v", result.Verdict.Rejections, result.Err)
	}

	if prompts := b.roller.sent(rollmux.KindDamage); len(prompts) != 0 {
		t.Errorf("damage prompts = %d, want none after a miss", len(prompts))
	}
	if hp := b.actorHP(t, "ghoul-1"); hp != 22 {
		t.Errorf("ghoul HP = %d, want 22", hp)
	}
	// The swing still cost the action.
	if entries := b.table.Snapshot().EconomyEntries("aria"); len(entries) != 1 {
		t.Errorf("economy entries = %v, want one", entries)
	}
}

func TestWeaponAttackCritDoublesDiceOnly(t *testing.T) {
	b := newBattle(t, defaultSlots(), map[string][][]int{
		"attack/ghoul-1": {{20}},
		"damage/":        {{4, 4}},
	})

	result := b.run(t, attackRequest(t, WeaponAttackPayload{WeaponID: "dagger"}, "tok-g1"))
	if !result.Verdict.Accepted() || result.Err != nil {
		t.Fatalf("attack failed: verdict = %v, err = %v", result.Verdict.Rejections, result.Err)
	}

	// The dice double, the ability modifier does not: 1d4+2 becomes 2d4+2.
	prompts := b.roller.sent(rollmux.KindDamage)
	if len(prompts) != 1 {
		t.Fatalf("damage prompts = %d, want 1", len(prompts))
	}
	if prompts[0].Expression != "2d4+2" {
		t.Errorf("damage expression = %q, want 2d4+2", prompts[0].Expression)
	}
	if hp := b.actorHP(t, "ghoul-1"); hp != 12 {
		t.Errorf("ghoul HP = %d, want 12", hp)
	}
	if _, ok := b.notifier.find(engine.EventAttackCrit); !ok {
		t.Errorf("event kinds = %v, want a crit", b.notifier.kinds())
	}
}

func TestWeaponAttackDamageTimeoutSkipsDamage(t *testing.T) {
	b := newBattle(t, defaultSlots(), map[string][][]int{
		"attack/ghoul-1": {{9}},
	})

	result := b.run(t, attackRequest(t, WeaponAttackPayload{WeaponID: "dagger"}, "tok-g1"))
	if !result.Verdict.Accepted() || result.Err != nil {
		t.Fatalf("attack failed: verdict = %v, err = %v", result.Verdict.Rejections, result.Err)
	}

	if hp := b.actorHP(t, "ghoul-1"); hp != 22 {
		t.Errorf("ghoul HP = %d, want 22", hp)
	}
	wantKinds := []engine.EventKind{engine.EventAttackHit, engine.EventDamageSkipped}
	if got := b.notifier.kinds(); !slices.Equal(got, wantKinds) {
		t.Errorf("event kinds = %v, want %v", got, wantKinds)
	}
}

func TestWeaponAttackByGMRunNPC(t *testing.T) {
	b := newBattle(t, defaultSlots(), map[string][][]int{
		"attack/aria": {{14}},
		"damage/":     {{4}},
	})

	req := engine.Request{
		SessionID:      "session-1",
		Type:           TypeWeaponAttack,
		ParticipantID:  "gm-1",
		GM:             true,
		ActorID:        "ghoul-1",
		ActorTokenID:   "tok-g1",
		TargetTokenIDs: []string{"tok-aria"},
		Payload:        mustPayload(t, WeaponAttackPayload{WeaponID: "claws"}),
	}
	result := b.run(t, req)
	if !result.Verdict.Accepted() || result.Err != nil {
		t.Fatalf("attack failed: verdict = %v, err = %v", result.Verdict.Rejections, result.Err)
	}

	// The ghoul's +1 Strength and stat-block proficiency 2 make +3;
	// 14 + 3 = 17 against Aria's AC 15, then 4 + 1 slashing.
	attacks := b.roller.sent(rollmux.KindAttack)
	if len(attacks) != 1 || attacks[0].Expression != "1d20+3" {
		t.Fatalf("attack prompts = %v, want one 1d20+3", attacks)
	}
	if attacks[0].ActorID != "ghoul-1" {
		t.Errorf("attack prompt actor = %s, want ghoul-1", attacks[0].ActorID)
	}
	if hp := b.actorHP(t, "aria"); hp != 22 {
		t.Errorf("aria HP = %d, want 22", hp)
	}
}
