package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hearthvtt/hearth/internal/game/dice"
	"github.com/hearthvtt/hearth/internal/game/dnd5e"
	"github.com/hearthvtt/hearth/internal/game/engine"
	"github.com/hearthvtt/hearth/internal/game/rollmux"
	"github.com/hearthvtt/hearth/internal/game/state"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
)

type testCompendium struct {
	spells  map[string]dnd5e.Spell
	weapons map[string]dnd5e.Weapon
}

func (c *testCompendium) Spell(spellID string) (dnd5e.Spell, bool) {
	spell, ok := c.spells[spellID]
	return spell, ok
}

func (c *testCompendium) Weapon(weaponID string) (dnd5e.Weapon, bool) {
	weapon, ok := c.weapons[weaponID]
	return weapon, ok
}

func newTestCompendium() *testCompendium {
	return &testCompendium{
		spells: map[string]dnd5e.Spell{
			"fire-bolt": {
				ID: "fire-bolt", Name: "Fire Bolt", Level: 0, School: "evocation",
				CastingTime: dnd5e.CastingTimeAction, Verbal: true, Somatic: true,
				AttackRoll: true,
				Damage:     &dnd5e.SpellDamage{Expression: "1d10", Type: "fire"},
			},
			"magic-missile": {
				ID: "magic-missile", Name: "Magic Missile", Level: 1, School: "evocation",
				CastingTime: dnd5e.CastingTimeAction, Verbal: true, Somatic: true,
				Damage: &dnd5e.SpellDamage{Expression: "3d4+3", Type: "force"},
			},
			"burning-hands": {
				ID: "burning-hands", Name: "Burning Hands", Level: 1, School: "evocation",
				CastingTime: dnd5e.CastingTimeAction, Verbal: true, Somatic: true,
				Save:       &dnd5e.SpellSave{Ability: dnd5e.AbilityDexterity, OnSave: dnd5e.SaveEffectHalf},
				Damage:     &dnd5e.SpellDamage{Expression: "3d6", Type: "fire"},
				MaxTargets: 3,
			},
			"hold-person": {
				ID: "hold-person", Name: "Hold Person", Level: 2, School: "enchantment",
				CastingTime: dnd5e.CastingTimeAction, Verbal: true, Somatic: true,
				Save:       &dnd5e.SpellSave{Ability: dnd5e.AbilityWisdom, OnSave: dnd5e.SaveEffectNone},
				Conditions: []dnd5e.Condition{dnd5e.ConditionParalyzed},
			},
			"expeditious-retreat": {
				ID: "expeditious-retreat", Name: "Expeditious Retreat", Level: 1, School: "transmutation",
				CastingTime: dnd5e.CastingTimeBonusAction, Verbal: true, Somatic: true,
			},
			"detect-magic": {
				ID: "detect-magic", Name: "Detect Magic", Level: 1, School: "divination",
				CastingTime: dnd5e.CastingTimeAction, Ritual: true, Verbal: true, Somatic: true,
			},
			"bless": {
				ID: "bless", Name: "Bless", Level: 1, School: "enchantment",
				CastingTime: dnd5e.CastingTimeAction, Verbal: true, Somatic: true,
				MaxTargets: 3,
			},
		},
		weapons: map[string]dnd5e.Weapon{
			"dagger": {
				ID: "dagger", Name: "Dagger", Damage: "1d4", DamageType: "piercing",
				Properties: []dnd5e.WeaponProperty{dnd5e.PropertyFinesse, dnd5e.PropertyLight, dnd5e.PropertyThrown},
			},
			"shortbow": {
				ID: "shortbow", Name: "Shortbow", Damage: "1d6", DamageType: "piercing",
				Properties:  []dnd5e.WeaponProperty{dnd5e.PropertyAmmunition, dnd5e.PropertyRanged},
				NormalRange: 80, LongRange: 320,
			},
			"claws": {
				ID: "claws", Name: "Claws", Damage: "1d6", DamageType: "slashing",
			},
		},
	}
}

// scriptedRoller answers prompts with pre-scripted dice, keyed by roll
// kind and target. Prompts with no script entry are left to time out.
type scriptedRoller struct {
	mu      sync.Mutex
	mux     *rollmux.Mux
	script  map[string][][]int
	prompts []rollmux.Prompt
}

func (r *scriptedRoller) bind(mux *rollmux.Mux) {
	r.mu.Lock()
	r.mux = mux
	r.mu.Unlock()
}

func (r *scriptedRoller) SendRollPrompt(_ context.Context, prompt rollmux.Prompt) error {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	mux := r.mux
	groups, ok := r.script[scriptKey(prompt)]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	go func() {
		rolls, err := scriptRolls(prompt.Expression, groups)
		if err != nil {
			return
		}
		mux.Resolve(prompt.CorrelationID, rolls)
	}()
	return nil
}

func (r *scriptedRoller) sent(kind rollmux.RollKind) []rollmux.Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	var prompts []rollmux.Prompt
	for _, p := range r.prompts {
		if p.Kind == kind {
			prompts = append(prompts, p)
		}
	}
	return prompts
}

func scriptKey(p rollmux.Prompt) string {
	return string(p.Kind) + "/" + p.TargetID
}

func scriptRolls(expression string, groups [][]int) ([]dice.Roll, error) {
	expr, err := dice.ParseExpression(expression)
	if err != nil {
		return nil, err
	}
	if len(groups) != len(expr.Groups) {
		return nil, fmt.Errorf("script has %d groups, expression %q wants %d", len(groups), expression, len(expr.Groups))
	}
	rolls := make([]dice.Roll, len(groups))
	for i, results := range groups {
		total := 0
		for _, v := range results {
			total += v
		}
		rolls[i] = dice.Roll{
			Sides:   expr.Groups[i].Sides,
			Results: append([]int(nil), results...),
			Total:   total,
		}
	}
	return rolls, nil
}

type captureNotifier struct {
	mu     sync.Mutex
	events []engine.Event
}

func (n *captureNotifier) ActionEvent(event engine.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *captureNotifier) kinds() []engine.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]engine.EventKind, len(n.events))
	for i, event := range n.events {
		kinds[i] = event.Kind
	}
	return kinds
}

func (n *captureNotifier) find(kind engine.EventKind) (engine.Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, event := range n.events {
		if event.Kind == kind {
			return event, true
		}
	}
	return engine.Event{}, false
}

type battle struct {
	session  *engine.Session
	table    *state.Table
	roller   *scriptedRoller
	notifier *captureNotifier
}

// newBattle builds a session around Aria, a level 5 wizard run by
// player-1, two ghouls, and a zombie. Slot pools come from the caller;
// the script feeds the roller.
func newBattle(t *testing.T, slots map[int]dnd5e.SlotPool, script map[string][][]int) *battle {
	t.Helper()

	ariaSheet := dnd5e.Sheet{
		SpellcastingAbility: dnd5e.AbilityIntelligence,
		Slots:               slots,
		Spells: []string{
			"fire-bolt", "magic-missile", "burning-hands",
			"hold-person", "expeditious-retreat", "detect-magic",
		},
		Weapons: []string{"dagger"},
	}
	ghoulSheet := dnd5e.Sheet{Weapons: []string{"claws"}}

	table := state.NewTable("session-1", []state.Actor{
		{
			ID: "aria", Name: "Aria", Kind: state.KindCharacter, ControllerID: "player-1",
			Level: 5, AC: 15, HP: 27, MaxHP: 27,
			Scores: dnd5e.AbilityScores{
				Strength: 10, Dexterity: 14, Constitution: 13,
				Intelligence: 17, Wisdom: 12, Charisma: 11,
			},
			Proficiencies: []string{"dagger", "save:intelligence"},
			Rules:         mustEncodeSheet(t, ariaSheet),
		},
		{
			ID: "ghoul-1", Name: "Ghoul 1", Kind: state.KindNPC,
			AC: 12, HP: 22, MaxHP: 22,
			Scores: dnd5e.AbilityScores{
				Strength: 13, Dexterity: 15, Constitution: 10,
				Intelligence: 7, Wisdom: 10, Charisma: 6,
			},
			Proficiencies:    []string{"claws"},
			ProficiencyBonus: 2,
			Rules:            mustEncodeSheet(t, ghoulSheet),
		},
		{
			ID: "ghoul-2", Name: "Ghoul 2", Kind: state.KindNPC,
			AC: 12, HP: 22, MaxHP: 22,
			Scores: dnd5e.AbilityScores{
				Strength: 13, Dexterity: 15, Constitution: 10,
				Intelligence: 7, Wisdom: 10, Charisma: 6,
			},
			Proficiencies:    []string{"claws"},
			ProficiencyBonus: 2,
			Rules:            mustEncodeSheet(t, ghoulSheet),
		},
		{
			ID: "zombie", Name: "Zombie", Kind: state.KindNPC,
			AC: 7, HP: 10, MaxHP: 10,
			Scores: dnd5e.AbilityScores{
				Strength: 13, Dexterity: 6, Constitution: 16,
				Intelligence: 3, Wisdom: 6, Charisma: 5,
			},
			ProficiencyBonus: 2,
		},
	}, []state.Token{
		{ID: "tok-aria", ActorID: "aria", X: 1, Y: 1},
		{ID: "tok-g1", ActorID: "ghoul-1", X: 3, Y: 2},
		{ID: "tok-g2", ActorID: "ghoul-2", X: 4, Y: 2},
		{ID: "tok-zom", ActorID: "zombie", X: 5, Y: 5},
	})

	registry := engine.NewRegistry()
	if err := Register(registry, newTestCompendium()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	roller := &scriptedRoller{script: script}
	mux := rollmux.New(roller, 500*time.Millisecond)
	roller.bind(mux)

	notifier := &captureNotifier{}
	session := engine.NewSession(context.Background(), engine.Config{
		Table:    table,
		Rolls:    mux,
		Registry: registry,
		Notifier: notifier,
	})
	t.Cleanup(session.Close)

	return &battle{session: session, table: table, roller: roller, notifier: notifier}
}

// run enqueues a request and blocks until its result is reported.
func (b *battle) run(t *testing.T, req engine.Request) engine.Result {
	t.Helper()
	results := make(chan engine.Result, 1)
	if err := b.session.Enqueue(req, func(r engine.Result) { results <- r }); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case result := <-results:
		return result
	case <-time.After(5 * time.Second):
		t.Fatal("no result reported")
		return engine.Result{}
	}
}

// mutate opens a draft, applies fn, and commits. Tests use it to stage
// conditions or spent economy before the request under test.
func (b *battle) mutate(t *testing.T, fn func(*state.Draft)) {
	t.Helper()
	draft, err := b.table.BeginDraft()
	if err != nil {
		t.Fatalf("BeginDraft() error = %v", err)
	}
	fn(draft)
	draft.Commit()
}

func (b *battle) actorHP(t *testing.T, actorID string) int {
	t.Helper()
	actor, ok := b.table.Snapshot().Actor(actorID)
	if !ok {
		t.Fatalf("actor %s not found", actorID)
	}
	return actor.HP
}

func (b *battle) slotUsed(t *testing.T, actorID string, level int) int {
	t.Helper()
	actor, ok := b.table.Snapshot().Actor(actorID)
	if !ok {
		t.Fatalf("actor %s not found", actorID)
	}
	sheet, err := dnd5e.DecodeSheet(actor.Rules)
	if err != nil {
		t.Fatalf("DecodeSheet() error = %v", err)
	}
	return sheet.Slots[level].Used
}

func mustEncodeSheet(t *testing.T, sheet dnd5e.Sheet) json.RawMessage {
	t.Helper()
	raw, err := sheet.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return raw
}

func mustPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return raw
}

func castRequest(t *testing.T, payload CastSpellPayload, targets ...string) engine.Request {
	t.Helper()
	return engine.Request{
		SessionID:      "session-1",
		Type:           TypeCastSpell,
		ParticipantID:  "player-1",
		ActorID:        "aria",
		ActorTokenID:   "tok-aria",
		TargetTokenIDs: targets,
		Payload:        mustPayload(t, payload),
	}
}

func attackRequest(t *testing.T, payload WeaponAttackPayload, targets ...string) engine.Request {
	t.Helper()
	return engine.Request{
		SessionID:      "session-1",
		Type:           TypeWeaponAttack,
		ParticipantID:  "player-1",
		ActorID:        "aria",
		ActorTokenID:   "tok-aria",
		TargetTokenIDs: targets,
		Payload:        mustPayload(t, payload),
	}
}

// hasCode reports whether any rejection in the verdict carries the code.
func hasCode(verdict engine.Verdict, code apperrors.Code) bool {
	for _, rejection := range verdict.Rejections {
		if rejection.Code == code {
			return true
		}
	}
	return false
}

// observedCosts reads what an actor actually spent: one ledger cost per
// economy entry, one sheet cost per slot level whose usage grew.
func observedCosts(t *testing.T, b *battle, actorID string, before dnd5e.Sheet) []engine.ResourceCost {
	t.Helper()
	var costs []engine.ResourceCost
	for _, entry := range b.table.Snapshot().EconomyEntries(actorID) {
		costs = append(costs, economyCost(entry.Kind))
	}
	actor, ok := b.table.Snapshot().Actor(actorID)
	if !ok {
		t.Fatalf("actor %s not found", actorID)
	}
	after, err := dnd5e.DecodeSheet(actor.Rules)
	if err != nil {
		t.Fatalf("DecodeSheet() error = %v", err)
	}
	for level, pool := range after.Slots {
		if delta := pool.Used - before.Slots[level].Used; delta > 0 {
			costs = append(costs, engine.ResourceCost{
				Path:   "slots." + strconv.Itoa(level),
				Amount: delta,
				Store:  engine.CostStoreSheet,
			})
		}
	}
	return costs
}

func TestVerdictCostsMatchConsumption(t *testing.T) {
	tests := []struct {
		name    string
		request func(t *testing.T) engine.Request
		script  map[string][][]int
	}{
		{
			name: "leveled spell",
			request: func(t *testing.T) engine.Request {
				return castRequest(t, CastSpellPayload{SpellID: "magic-missile"}, "tok-g1")
			},
			script: map[string][][]int{"damage/": {{2, 2, 2}}},
		},
		{
			name: "upcast spell",
			request: func(t *testing.T) engine.Request {
				return castRequest(t, CastSpellPayload{SpellID: "magic-missile", SlotLevel: 2}, "tok-g1")
			},
			script: map[string][][]int{"damage/": {{2, 2, 2}}},
		},
		{
			name: "cantrip",
			request: func(t *testing.T) engine.Request {
				return castRequest(t, CastSpellPayload{SpellID: "fire-bolt"}, "tok-g1")
			},
			script: map[string][][]int{"attack/ghoul-1": {{12}}, "damage/": {{4}}},
		},
		{
			name: "bonus action spell",
			request: func(t *testing.T) engine.Request {
				return castRequest(t, CastSpellPayload{SpellID: "expeditious-retreat"}, "tok-aria")
			},
		},
		{
			name: "ritual",
			request: func(t *testing.T) engine.Request {
				return castRequest(t, CastSpellPayload{SpellID: "detect-magic", Ritual: true}, "tok-aria")
			},
		},
		{
			name: "weapon attack",
			request: func(t *testing.T) engine.Request {
				return attackRequest(t, WeaponAttackPayload{WeaponID: "dagger"}, "tok-g1")
			},
			script: map[string][][]int{"attack/ghoul-1": {{3}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBattle(t, defaultSlots(), tt.script)
			actor, ok := b.table.Snapshot().Actor("aria")
			if !ok {
				t.Fatal("actor aria not found")
			}
			before, err := dnd5e.DecodeSheet(actor.Rules)
			if err != nil {
				t.Fatalf("DecodeSheet() error = %v", err)
			}

			result := b.run(t, tt.request(t))
			if !result.Verdict.Accepted() || result.Err != nil {
				t.Fatalf("action failed: verdict = %v, err = %v", result.Verdict.Rejections, result.Err)
			}

			declared := append([]engine.ResourceCost(nil), result.Verdict.Costs...)
			observed := observedCosts(t, b, "aria", before)
			sort.Slice(declared, func(i, j int) bool { return declared[i].Path < declared[j].Path })
			sort.Slice(observed, func(i, j int) bool { return observed[i].Path < observed[j].Path })
			if !slices.Equal(declared, observed) {
				t.Errorf("declared costs = %v, consumed = %v", declared, observed)
			}
		})
	}
}

func TestLeveledSpellTag(t *testing.T) {
	tests := []struct {
		tag  string
		want bool
	}{
		{"spell:1", true},
		{"spell:9", true},
		{"spell:0", false},
		{"weapon:dagger", false},
		{"condition:prone", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isLeveledSpellTag(tt.tag); got != tt.want {
			t.Errorf("isLeveledSpellTag(%q) = %v, want %v", tt.tag, got, tt.want)
		}
	}
}

func TestRollExpressionForBonus(t *testing.T) {
	tests := []struct {
		bonus int
		want  string
	}{
		{6, "1d20+6"},
		{0, "1d20"},
		{-2, "1d20-2"},
	}
	for _, tt := range tests {
		if got := rollExpression(tt.bonus); got != tt.want {
			t.Errorf("rollExpression(%d) = %q, want %q", tt.bonus, got, tt.want)
		}
	}
}
