package assistant

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hearthvtt/hearth/internal/game/dnd5e"
	"github.com/hearthvtt/hearth/internal/table/storage"
)

const storeCallTimeout = 5 * time.Second

// ListActorsInput represents the MCP tool input for listing actors.
type ListActorsInput struct {
	CampaignID string `json:"campaign_id" jsonschema:"campaign identifier"`
}

// ListActorsResult represents the MCP tool output for listing actors.
type ListActorsResult struct {
	Actors []ActorSummary `json:"actors" jsonschema:"actors in the campaign, characters and NPCs alike"`
}

// ActorSummary is the board-level view of one actor.
type ActorSummary struct {
	ID           string   `json:"id" jsonschema:"actor identifier"`
	Name         string   `json:"name"`
	Kind         string   `json:"kind" jsonschema:"character or npc"`
	ControllerID string   `json:"controller_id,omitempty" jsonschema:"participant controlling the actor; empty for GM-run creatures"`
	HP           int      `json:"hp"`
	MaxHP        int      `json:"max_hp"`
	AC           int      `json:"ac"`
	Conditions   []string `json:"conditions,omitempty" jsonschema:"active conditions"`
}

// ListActorsTool defines the MCP tool schema for listing actors.
func ListActorsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_actors",
		Description: "Lists every actor in a campaign with hit points, armor class, and active conditions.",
	}
}

// ListActorsHandler executes an actor list request.
func ListActorsHandler(store storage.Stores) mcp.ToolHandlerFor[ListActorsInput, ListActorsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListActorsInput) (*mcp.CallToolResult, ListActorsResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
		defer cancel()

		records, err := store.ListActorsByCampaign(callCtx, input.CampaignID)
		if err != nil {
			return nil, ListActorsResult{}, fmt.Errorf("list actors: %w", err)
		}

		result := ListActorsResult{Actors: make([]ActorSummary, len(records))}
		for i, record := range records {
			result.Actors[i] = ActorSummary{
				ID:           record.ID,
				Name:         record.Name,
				Kind:         record.Kind,
				ControllerID: record.ControllerID,
				HP:           record.HP,
				MaxHP:        record.MaxHP,
				AC:           record.AC,
				Conditions:   record.Conditions,
			}
		}
		return nil, result, nil
	}
}

// ActorStatusInput represents the MCP tool input for one actor's status.
type ActorStatusInput struct {
	CampaignID string `json:"campaign_id" jsonschema:"campaign identifier"`
	ActorID    string `json:"actor_id" jsonschema:"actor identifier"`
}

// ActorStatusResult represents the MCP tool output for one actor's status.
type ActorStatusResult struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Kind             string       `json:"kind" jsonschema:"character or npc"`
	Level            int          `json:"level,omitempty"`
	HP               int          `json:"hp"`
	MaxHP            int          `json:"max_hp"`
	AC               int          `json:"ac"`
	ProficiencyBonus int          `json:"proficiency_bonus" jsonschema:"level-derived for characters, stat-block for NPCs"`
	Conditions       []string     `json:"conditions,omitempty"`
	Spells           []string     `json:"spells,omitempty" jsonschema:"spell ids the actor knows"`
	Weapons          []string     `json:"weapons,omitempty" jsonschema:"weapon ids the actor carries"`
	SpellSlots       []SlotStatus `json:"spell_slots,omitempty" jsonschema:"spell slots by level"`
}

// SlotStatus is the remaining pool for one slot level.
type SlotStatus struct {
	Level     int `json:"level"`
	Max       int `json:"max"`
	Remaining int `json:"remaining"`
}

// ActorStatusTool defines the MCP tool schema for one actor's status.
func ActorStatusTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "actor_status",
		Description: "Shows one actor in detail: hit points, conditions, known spells, carried weapons, and remaining spell slots.",
	}
}

// ActorStatusHandler executes an actor status request.
func ActorStatusHandler(store storage.Stores) mcp.ToolHandlerFor[ActorStatusInput, ActorStatusResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ActorStatusInput) (*mcp.CallToolResult, ActorStatusResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
		defer cancel()

		actor, err := loadActor(callCtx, store, input.CampaignID, input.ActorID)
		if err != nil {
			return nil, ActorStatusResult{}, fmt.Errorf("load actor: %w", err)
		}

		sheet, err := dnd5e.DecodeSheet(actor.Rules)
		if err != nil {
			return nil, ActorStatusResult{}, fmt.Errorf("decode actor sheet: %w", err)
		}

		result := ActorStatusResult{
			ID:               actor.ID,
			Name:             actor.Name,
			Kind:             string(actor.Kind),
			Level:            actor.Level,
			HP:               actor.HP,
			MaxHP:            actor.MaxHP,
			AC:               actor.AC,
			ProficiencyBonus: actor.Proficiency(),
			Conditions:       actor.Conditions,
			Spells:           sheet.Spells,
			Weapons:          sheet.Weapons,
			SpellSlots:       slotStatuses(sheet),
		}
		return nil, result, nil
	}
}

func slotStatuses(sheet dnd5e.Sheet) []SlotStatus {
	if len(sheet.Slots) == 0 {
		return nil
	}
	statuses := make([]SlotStatus, 0, len(sheet.Slots))
	for level, pool := range sheet.Slots {
		remaining := pool.Max - pool.Used
		if remaining < 0 {
			remaining = 0
		}
		statuses = append(statuses, SlotStatus{Level: level, Max: pool.Max, Remaining: remaining})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Level < statuses[j].Level })
	return statuses
}
