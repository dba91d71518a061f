package dnd5e

import "testing"

func TestDecodeSpell(t *testing.T) {
	raw := []byte(`{
		"id": "fireball",
		"name": "Fireball",
		"level": 3,
		"school": "evocation",
		"casting_time": "action",
		"verbal": true,
		"somatic": true,
		"save": {"ability": "dexterity", "on_save": "half"},
		"damage": {"expression": "8d6", "type": "fire"},
		"max_targets": 6
	}`)

	spell, err := DecodeSpell(raw)
	if err != nil {
		t.Fatalf("DecodeSpell() error = %v", err)
	}

	if spell.ID != "fireball" {
		t.Errorf("ID = %q, want %q", spell.ID, "fireball")
	}
	if spell.Level != 3 {
		t.Errorf("Level = %d, want 3", spell.Level)
	}
	if spell.Cantrip() {
		t.Error("Cantrip() = true, want false")
	}
	if spell.CastingTime != CastingTimeAction {
		t.Errorf("CastingTime = %q, want %q", spell.CastingTime, CastingTimeAction)
	}
	if spell.Save == nil || spell.Save.Ability != AbilityDexterity || spell.Save.OnSave != SaveEffectHalf {
		t.Errorf("Save = %+v, want dexterity half", spell.Save)
	}
	if spell.Damage == nil || spell.Damage.Expression != "8d6" {
		t.Errorf("Damage = %+v, want 8d6", spell.Damage)
	}
	if spell.TargetLimit() != 6 {
		t.Errorf("TargetLimit() = %d, want 6", spell.TargetLimit())
	}
}

func TestDecodeSpellRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "missing id",
			raw:  `{"name": "Fireball", "level": 3, "casting_time": "action"}`,
		},
		{
			name: "missing name",
			raw:  `{"id": "fireball", "level": 3, "casting_time": "action"}`,
		},
		{
			name: "level above nine",
			raw:  `{"id": "x", "name": "X", "level": 10, "casting_time": "action"}`,
		},
		{
			name: "negative level",
			raw:  `{"id": "x", "name": "X", "level": -1, "casting_time": "action"}`,
		},
		{
			name: "unknown casting time",
			raw:  `{"id": "x", "name": "X", "level": 1, "casting_time": "minute"}`,
		},
		{
			name: "unknown save effect",
			raw:  `{"id": "x", "name": "X", "level": 1, "casting_time": "action", "save": {"ability": "dexterity", "on_save": "quarter"}}`,
		},
		{
			name: "attack roll and save together",
			raw:  `{"id": "x", "name": "X", "level": 1, "casting_time": "action", "attack_roll": true, "save": {"ability": "dexterity", "on_save": "half"}}`,
		},
		{
			name: "malformed json",
			raw:  `{"id": `,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSpell([]byte(tt.raw)); err == nil {
				t.Fatal("DecodeSpell() error = nil, want error")
			}
		})
	}
}

func TestSpellTargetLimitDefaultsToOne(t *testing.T) {
	spell := Spell{ID: "firebolt", Name: "Fire Bolt", CastingTime: CastingTimeAction}
	if got := spell.TargetLimit(); got != 1 {
		t.Errorf("TargetLimit() = %d, want 1", got)
	}
	if !spell.Cantrip() {
		t.Error("Cantrip() = false, want true for level 0")
	}
}
