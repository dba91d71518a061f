package dnd5e

import "testing"

func TestDecodeWeapon(t *testing.T) {
	raw := []byte(`{
		"id": "longbow",
		"name": "Longbow",
		"damage": "1d8",
		"damage_type": "piercing",
		"properties": ["ammunition", "heavy", "ranged", "two_handed"],
		"normal_range": 150,
		"long_range": 600
	}`)

	weapon, err := DecodeWeapon(raw)
	if err != nil {
		t.Fatalf("DecodeWeapon() error = %v", err)
	}

	if weapon.ID != "longbow" {
		t.Errorf("ID = %q, want %q", weapon.ID, "longbow")
	}
	if weapon.Damage != "1d8" {
		t.Errorf("Damage = %q, want %q", weapon.Damage, "1d8")
	}
	if !weapon.HasProperty(PropertyRanged) {
		t.Error("HasProperty(ranged) = false, want true")
	}
	if weapon.HasProperty(PropertyFinesse) {
		t.Error("HasProperty(finesse) = true, want false")
	}
}

func TestDecodeWeaponRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "missing id", raw: `{"name": "Longsword", "damage": "1d8"}`},
		{name: "missing name", raw: `{"id": "longsword", "damage": "1d8"}`},
		{name: "missing damage", raw: `{"id": "longsword", "name": "Longsword"}`},
		{name: "malformed json", raw: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeWeapon([]byte(tt.raw)); err == nil {
				t.Fatal("DecodeWeapon() error = nil, want error")
			}
		})
	}
}

func TestAttackAbility(t *testing.T) {
	scores := AbilityScores{Strength: 16, Dexterity: 18}
	weakScores := AbilityScores{Strength: 16, Dexterity: 10}

	tests := []struct {
		name   string
		weapon Weapon
		scores AbilityScores
		want   Ability
	}{
		{
			name:   "ranged uses dexterity",
			weapon: Weapon{ID: "longbow", Properties: []WeaponProperty{PropertyRanged}},
			scores: weakScores,
			want:   AbilityDexterity,
		},
		{
			name:   "finesse prefers the better modifier",
			weapon: Weapon{ID: "rapier", Properties: []WeaponProperty{PropertyFinesse}},
			scores: scores,
			want:   AbilityDexterity,
		},
		{
			name:   "finesse keeps strength on a tie or better",
			weapon: Weapon{ID: "rapier", Properties: []WeaponProperty{PropertyFinesse}},
			scores: weakScores,
			want:   AbilityStrength,
		},
		{
			name:   "melee uses strength even with higher dexterity",
			weapon: Weapon{ID: "greataxe", Properties: []WeaponProperty{PropertyHeavy}},
			scores: scores,
			want:   AbilityStrength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AttackAbility(tt.weapon, tt.scores); got != tt.want {
				t.Fatalf("AttackAbility(%s) = %s, want %s", tt.weapon.ID, got, tt.want)
			}
		})
	}
}
