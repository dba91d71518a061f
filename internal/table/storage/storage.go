// Package storage defines persistence contracts for table campaign
// documents: the campaign record, its actors, and the spell and weapon
// compendium entries the action handlers resolve against. Documents are
// seeded out of band; the table service reads them at room start and
// writes actors back as actions change them.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hearthvtt/hearth/internal/game/dnd5e"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing. It matches any
// domain error carrying the NOT_FOUND code.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// Campaign is one campaign document. Locale selects the catalog the
// renderer localizes system chat lines with.
type Campaign struct {
	ID        string
	Name      string
	Locale    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Actor is one persisted combat participant. Board fields are scalar
// columns; the rules payload stays opaque JSON the dnd5e sheet view
// decodes.
type Actor struct {
	ID               string
	CampaignID       string
	Name             string
	Kind             string
	ControllerID     string
	Level            int
	AC               int
	HP               int
	MaxHP            int
	ProficiencyBonus int
	Scores           dnd5e.AbilityScores
	Proficiencies    []string
	Conditions       []string
	Rules            json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Spell is one compendium spell entry. Doc is the full dnd5e spell
// document; the scalar columns exist for listing and lookups.
type Spell struct {
	ID         string
	CampaignID string
	Name       string
	Level      int
	Doc        json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Weapon is one compendium weapon entry.
type Weapon struct {
	ID         string
	CampaignID string
	Name       string
	Doc        json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CampaignStore persists campaign records.
type CampaignStore interface {
	PutCampaign(ctx context.Context, campaign Campaign) error
	GetCampaign(ctx context.Context, campaignID string) (Campaign, error)
}

// ActorStore persists actors within a campaign.
type ActorStore interface {
	PutActor(ctx context.Context, actor Actor) error
	GetActor(ctx context.Context, campaignID, actorID string) (Actor, error)
	ListActorsByCampaign(ctx context.Context, campaignID string) ([]Actor, error)
}

// SpellStore persists compendium spells within a campaign.
type SpellStore interface {
	PutSpell(ctx context.Context, spell Spell) error
	GetSpell(ctx context.Context, campaignID, spellID string) (Spell, error)
	ListSpellsByCampaign(ctx context.Context, campaignID string) ([]Spell, error)
}

// WeaponStore persists compendium weapons within a campaign.
type WeaponStore interface {
	PutWeapon(ctx context.Context, weapon Weapon) error
	GetWeapon(ctx context.Context, campaignID, weaponID string) (Weapon, error)
	ListWeaponsByCampaign(ctx context.Context, campaignID string) ([]Weapon, error)
}

// Stores groups every document store the table service needs.
type Stores interface {
	CampaignStore
	ActorStore
	SpellStore
	WeaponStore
}
