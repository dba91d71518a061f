package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hearthvtt/hearth/internal/table/storage"
)

// PutSpell inserts or updates one compendium spell entry.
func (s *Store) PutSpell(ctx context.Context, spell storage.Spell) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	campaignID := strings.TrimSpace(spell.CampaignID)
	spellID := strings.TrimSpace(spell.ID)
	name := strings.TrimSpace(spell.Name)
	if campaignID == "" {
		return fmt.Errorf("campaign id is required")
	}
	if spellID == "" {
		return fmt.Errorf("spell id is required")
	}
	if name == "" {
		return fmt.Errorf("spell name is required")
	}
	if len(spell.Doc) == 0 {
		return fmt.Errorf("spell doc is required")
	}
	createdAt, updatedAt := normalizeTimestamps(spell.CreatedAt, spell.UpdatedAt)

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO spells (campaign_id, id, name, level, doc, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(campaign_id, id) DO UPDATE SET
	name = excluded.name,
	level = excluded.level,
	doc = excluded.doc,
	updated_at = excluded.updated_at
`,
		campaignID,
		spellID,
		name,
		spell.Level,
		string(spell.Doc),
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return campaignMissingError(campaignID)
		}
		return fmt.Errorf("put spell: %w", err)
	}
	return nil
}

// GetSpell returns one compendium spell entry.
func (s *Store) GetSpell(ctx context.Context, campaignID, spellID string) (storage.Spell, error) {
	if err := ctx.Err(); err != nil {
		return storage.Spell{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Spell{}, fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	spellID = strings.TrimSpace(spellID)
	if campaignID == "" {
		return storage.Spell{}, fmt.Errorf("campaign id is required")
	}
	if spellID == "" {
		return storage.Spell{}, fmt.Errorf("spell id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT campaign_id, id, name, level, doc, created_at, updated_at
FROM spells
WHERE campaign_id = ? AND id = ?
`, campaignID, spellID)

	spell, err := scanSpell(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Spell{}, storage.ErrNotFound
		}
		return storage.Spell{}, fmt.Errorf("get spell: %w", err)
	}
	return spell, nil
}

// ListSpellsByCampaign returns every spell in a campaign ordered by id.
func (s *Store) ListSpellsByCampaign(ctx context.Context, campaignID string) ([]storage.Spell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return nil, fmt.Errorf("campaign id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT campaign_id, id, name, level, doc, created_at, updated_at
FROM spells
WHERE campaign_id = ?
ORDER BY id ASC
`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list spells: %w", err)
	}
	defer rows.Close()

	var spells []storage.Spell
	for rows.Next() {
		spell, err := scanSpell(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list spells: %w", err)
		}
		spells = append(spells, spell)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list spells: %w", err)
	}
	return spells, nil
}

func scanSpell(scan func(dest ...any) error) (storage.Spell, error) {
	var spell storage.Spell
	var doc string
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&spell.CampaignID,
		&spell.ID,
		&spell.Name,
		&spell.Level,
		&doc,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Spell{}, err
	}
	spell.Doc = json.RawMessage(doc)
	spell.CreatedAt = fromMillis(createdAt)
	spell.UpdatedAt = fromMillis(updatedAt)
	return spell, nil
}

// PutWeapon inserts or updates one compendium weapon entry.
func (s *Store) PutWeapon(ctx context.Context, weapon storage.Weapon) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	campaignID := strings.TrimSpace(weapon.CampaignID)
	weaponID := strings.TrimSpace(weapon.ID)
	name := strings.TrimSpace(weapon.Name)
	if campaignID == "" {
		return fmt.Errorf("campaign id is required")
	}
	if weaponID == "" {
		return fmt.Errorf("weapon id is required")
	}
	if name == "" {
		return fmt.Errorf("weapon name is required")
	}
	if len(weapon.Doc) == 0 {
		return fmt.Errorf("weapon doc is required")
	}
	createdAt, updatedAt := normalizeTimestamps(weapon.CreatedAt, weapon.UpdatedAt)

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO weapons (campaign_id, id, name, doc, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(campaign_id, id) DO UPDATE SET
	name = excluded.name,
	doc = excluded.doc,
	updated_at = excluded.updated_at
`,
		campaignID,
		weaponID,
		name,
		string(weapon.Doc),
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return campaignMissingError(campaignID)
		}
		return fmt.Errorf("put weapon: %w", err)
	}
	return nil
}

// GetWeapon returns one compendium weapon entry.
func (s *Store) GetWeapon(ctx context.Context, campaignID, weaponID string) (storage.Weapon, error) {
	if err := ctx.Err(); err != nil {
		return storage.Weapon{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Weapon{}, fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	weaponID = strings.TrimSpace(weaponID)
	if campaignID == "" {
		return storage.Weapon{}, fmt.Errorf("campaign id is required")
	}
	if weaponID == "" {
		return storage.Weapon{}, fmt.Errorf("weapon id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT campaign_id, id, name, doc, created_at, updated_at
FROM weapons
WHERE campaign_id = ? AND id = ?
`, campaignID, weaponID)

	weapon, err := scanWeapon(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Weapon{}, storage.ErrNotFound
		}
		return storage.Weapon{}, fmt.Errorf("get weapon: %w", err)
	}
	return weapon, nil
}

// ListWeaponsByCampaign returns every weapon in a campaign ordered by id.
func (s *Store) ListWeaponsByCampaign(ctx context.Context, campaignID string) ([]storage.Weapon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return nil, fmt.Errorf("campaign id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT campaign_id, id, name, doc, created_at, updated_at
FROM weapons
WHERE campaign_id = ?
ORDER BY id ASC
`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list weapons: %w", err)
	}
	defer rows.Close()

	var weapons []storage.Weapon
	for rows.Next() {
		weapon, err := scanWeapon(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list weapons: %w", err)
		}
		weapons = append(weapons, weapon)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list weapons: %w", err)
	}
	return weapons, nil
}

func scanWeapon(scan func(dest ...any) error) (storage.Weapon, error) {
	var weapon storage.Weapon
	var doc string
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&weapon.CampaignID,
		&weapon.ID,
		&weapon.Name,
		&doc,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Weapon{}, err
	}
	weapon.Doc = json.RawMessage(doc)
	weapon.CreatedAt = fromMillis(createdAt)
	weapon.UpdatedAt = fromMillis(updatedAt)
	return weapon, nil
}
