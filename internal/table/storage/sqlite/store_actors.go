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

// PutActor inserts or updates one actor record.
func (s *Store) PutActor(ctx context.Context, actor storage.Actor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	campaignID := strings.TrimSpace(actor.CampaignID)
	actorID := strings.TrimSpace(actor.ID)
	name := strings.TrimSpace(actor.Name)
	kind := strings.TrimSpace(actor.Kind)
	if campaignID == "" {
		return fmt.Errorf("campaign id is required")
	}
	if actorID == "" {
		return fmt.Errorf("actor id is required")
	}
	if name == "" {
		return fmt.Errorf("actor name is required")
	}
	if kind == "" {
		return fmt.Errorf("actor kind is required")
	}

	scores, err := json.Marshal(actor.Scores)
	if err != nil {
		return fmt.Errorf("encode actor scores: %w", err)
	}
	proficiencies, err := encodeStringList(actor.Proficiencies)
	if err != nil {
		return fmt.Errorf("put actor: %w", err)
	}
	conditions, err := encodeStringList(actor.Conditions)
	if err != nil {
		return fmt.Errorf("put actor: %w", err)
	}
	createdAt, updatedAt := normalizeTimestamps(actor.CreatedAt, actor.UpdatedAt)

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO actors (
	campaign_id, id, name, kind, controller_id, level, ac, hp, max_hp,
	proficiency_bonus, scores, proficiencies, conditions, rules, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(campaign_id, id) DO UPDATE SET
	name = excluded.name,
	kind = excluded.kind,
	controller_id = excluded.controller_id,
	level = excluded.level,
	ac = excluded.ac,
	hp = excluded.hp,
	max_hp = excluded.max_hp,
	proficiency_bonus = excluded.proficiency_bonus,
	scores = excluded.scores,
	proficiencies = excluded.proficiencies,
	conditions = excluded.conditions,
	rules = excluded.rules,
	updated_at = excluded.updated_at
`,
		campaignID,
		actorID,
		name,
		kind,
		strings.TrimSpace(actor.ControllerID),
		actor.Level,
		actor.AC,
		actor.HP,
		actor.MaxHP,
		actor.ProficiencyBonus,
		string(scores),
		proficiencies,
		conditions,
		string(actor.Rules),
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return campaignMissingError(campaignID)
		}
		return fmt.Errorf("put actor: %w", err)
	}
	return nil
}

// GetActor returns one actor record by campaign and id.
func (s *Store) GetActor(ctx context.Context, campaignID, actorID string) (storage.Actor, error) {
	if err := ctx.Err(); err != nil {
		return storage.Actor{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Actor{}, fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	actorID = strings.TrimSpace(actorID)
	if campaignID == "" {
		return storage.Actor{}, fmt.Errorf("campaign id is required")
	}
	if actorID == "" {
		return storage.Actor{}, fmt.Errorf("actor id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT campaign_id, id, name, kind, controller_id, level, ac, hp, max_hp,
       proficiency_bonus, scores, proficiencies, conditions, rules, created_at, updated_at
FROM actors
WHERE campaign_id = ? AND id = ?
`, campaignID, actorID)

	actor, err := scanActor(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Actor{}, storage.ErrNotFound
		}
		return storage.Actor{}, fmt.Errorf("get actor: %w", err)
	}
	return actor, nil
}

// ListActorsByCampaign returns every actor in a campaign ordered by id.
func (s *Store) ListActorsByCampaign(ctx context.Context, campaignID string) ([]storage.Actor, error) {
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
SELECT campaign_id, id, name, kind, controller_id, level, ac, hp, max_hp,
       proficiency_bonus, scores, proficiencies, conditions, rules, created_at, updated_at
FROM actors
WHERE campaign_id = ?
ORDER BY id ASC
`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	defer rows.Close()

	var actors []storage.Actor
	for rows.Next() {
		actor, err := scanActor(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list actors: %w", err)
		}
		actors = append(actors, actor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	return actors, nil
}

func scanActor(scan func(dest ...any) error) (storage.Actor, error) {
	var actor storage.Actor
	var scores string
	var proficiencies string
	var conditions string
	var rules string
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&actor.CampaignID,
		&actor.ID,
		&actor.Name,
		&actor.Kind,
		&actor.ControllerID,
		&actor.Level,
		&actor.AC,
		&actor.HP,
		&actor.MaxHP,
		&actor.ProficiencyBonus,
		&scores,
		&proficiencies,
		&conditions,
		&rules,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Actor{}, err
	}

	if err := json.Unmarshal([]byte(scores), &actor.Scores); err != nil {
		return storage.Actor{}, fmt.Errorf("decode actor scores: %w", err)
	}
	var err error
	if actor.Proficiencies, err = decodeStringList(proficiencies); err != nil {
		return storage.Actor{}, err
	}
	if actor.Conditions, err = decodeStringList(conditions); err != nil {
		return storage.Actor{}, err
	}
	if strings.TrimSpace(rules) != "" {
		actor.Rules = json.RawMessage(rules)
	}
	actor.CreatedAt = fromMillis(createdAt)
	actor.UpdatedAt = fromMillis(updatedAt)
	return actor, nil
}
