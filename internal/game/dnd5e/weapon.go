package dnd5e

import (
	"encoding/json"
	"fmt"
)

// WeaponProperty is one of the tagged properties a weapon can carry.
type WeaponProperty string

const (
	PropertyAmmunition WeaponProperty = "ammunition"
	PropertyFinesse    WeaponProperty = "finesse"
	PropertyHeavy      WeaponProperty = "heavy"
	PropertyLight      WeaponProperty = "light"
	PropertyRanged     WeaponProperty = "ranged"
	PropertyReach      WeaponProperty = "reach"
	PropertyThrown     WeaponProperty = "thrown"
	PropertyTwoHanded  WeaponProperty = "two_handed"
	PropertyVersatile  WeaponProperty = "versatile"
)

// Weapon is one compendium weapon document. Damage is a dice expression
// such as "1d8" or "2d6".
type Weapon struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Damage      string           `json:"damage"`
	DamageType  string           `json:"damage_type"`
	Properties  []WeaponProperty `json:"properties,omitempty"`
	NormalRange int              `json:"normal_range,omitempty"`
	LongRange   int              `json:"long_range,omitempty"`
}

// HasProperty reports whether the weapon carries the given property.
func (w Weapon) HasProperty(property WeaponProperty) bool {
	for _, p := range w.Properties {
		if p == property {
			return true
		}
	}
	return false
}

// Validate checks the structural fields a compendium weapon must carry.
func (w Weapon) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("weapon missing id")
	}
	if w.Name == "" {
		return fmt.Errorf("weapon %s missing name", w.ID)
	}
	if w.Damage == "" {
		return fmt.Errorf("weapon %s missing damage expression", w.ID)
	}
	return nil
}

// DecodeWeapon decodes and validates a compendium weapon document.
func DecodeWeapon(raw []byte) (Weapon, error) {
	var weapon Weapon
	if err := json.Unmarshal(raw, &weapon); err != nil {
		return Weapon{}, fmt.Errorf("decode weapon: %w", err)
	}
	if err := weapon.Validate(); err != nil {
		return Weapon{}, err
	}
	return weapon, nil
}

// AttackAbility selects the ability an attack with the weapon uses. Ranged
// weapons use Dexterity, finesse weapons use the better of Strength and
// Dexterity, and everything else uses Strength.
func AttackAbility(weapon Weapon, scores AbilityScores) Ability {
	if weapon.HasProperty(PropertyRanged) {
		return AbilityDexterity
	}
	if weapon.HasProperty(PropertyFinesse) {
		if scores.Modifier(AbilityDexterity) > scores.Modifier(AbilityStrength) {
			return AbilityDexterity
		}
	}
	return AbilityStrength
}
