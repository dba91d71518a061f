package dnd5e

import (
	"encoding/json"
	"fmt"
)

// SlotPool tracks one level of spell slots on a sheet.
type SlotPool struct {
	Max  int `json:"max"`
	Used int `json:"used"`
}

// Available reports whether the pool still has an unspent slot.
func (p SlotPool) Available() bool {
	return p.Used < p.Max
}

// Sheet is the narrow system-level view the engine extracts from an actor's
// rules payload: what the actor can cast, what it carries, and which spell
// slots remain. Board-level state such as HP and conditions lives on the
// actor itself, not here.
type Sheet struct {
	SpellcastingAbility Ability          `json:"spellcasting_ability,omitempty"`
	Slots               map[int]SlotPool `json:"slots,omitempty"`
	Spells              []string         `json:"spells,omitempty"`
	Weapons             []string         `json:"weapons,omitempty"`

	// raw is the payload the sheet was decoded from. Encode merges the
	// sheet's fields back over it, so payload keys the engine does not
	// model survive a write-back.
	raw json.RawMessage
}

// DecodeSheet decodes an actor's rules payload. A nil or empty payload
// decodes to a zero sheet; an actor with no system data simply knows no
// spells and carries no weapons.
func DecodeSheet(raw []byte) (Sheet, error) {
	if len(raw) == 0 {
		return Sheet{}, nil
	}
	var sheet Sheet
	if err := json.Unmarshal(raw, &sheet); err != nil {
		return Sheet{}, fmt.Errorf("decode sheet: %w", err)
	}
	sheet.raw = append(json.RawMessage(nil), raw...)
	return sheet, nil
}

// Encode serializes the sheet back into a rules payload. A sheet decoded
// from an existing payload writes its own fields over that payload and
// leaves every other key untouched; the rules blob belongs to the game
// system, and the engine only owns the slice of it the sheet models.
func (s Sheet) Encode() ([]byte, error) {
	own, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode sheet: %w", err)
	}
	if len(s.raw) == 0 {
		return own, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(s.raw, &merged); err != nil {
		return nil, fmt.Errorf("encode sheet: reread payload: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(own, &fields); err != nil {
		return nil, fmt.Errorf("encode sheet: %w", err)
	}
	for key, value := range fields {
		merged[key] = value
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode sheet: %w", err)
	}
	return raw, nil
}

// KnowsSpell reports whether the sheet lists the spell.
func (s Sheet) KnowsSpell(spellID string) bool {
	for _, id := range s.Spells {
		if id == spellID {
			return true
		}
	}
	return false
}

// HasWeapon reports whether the sheet lists the weapon.
func (s Sheet) HasWeapon(weaponID string) bool {
	for _, id := range s.Weapons {
		if id == weaponID {
			return true
		}
	}
	return false
}

// SlotAvailable reports whether the sheet has an unspent slot at the level.
func (s Sheet) SlotAvailable(level int) bool {
	pool, ok := s.Slots[level]
	return ok && pool.Available()
}

// SpendSlot returns a copy of the sheet with one slot of the given level
// spent. It fails when the level has no pool or the pool is exhausted; the
// caller distinguishes the two with SlotAvailable beforehand if it needs to.
func (s Sheet) SpendSlot(level int) (Sheet, error) {
	pool, ok := s.Slots[level]
	if !ok || !pool.Available() {
		return Sheet{}, fmt.Errorf("no level %d slot available", level)
	}
	pool.Used++
	slots := make(map[int]SlotPool, len(s.Slots))
	for lvl, p := range s.Slots {
		slots[lvl] = p
	}
	slots[level] = pool
	s.Slots = slots
	return s, nil
}
