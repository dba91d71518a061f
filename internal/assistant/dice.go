package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hearthvtt/hearth/internal/game/dice"
)

// RollDiceInput represents the MCP tool input for rolling dice.
type RollDiceInput struct {
	Expression string `json:"expression" jsonschema:"dice expression such as 2d6+3 or 1d20"`
	Seed       int64  `json:"seed,omitempty" jsonschema:"optional seed for reproducible rolls; 0 picks one from the clock"`
}

// RollDiceResult represents the MCP tool output for rolling dice.
type RollDiceResult struct {
	Expression string      `json:"expression" jsonschema:"normalized expression that was rolled"`
	Seed       int64       `json:"seed" jsonschema:"seed the roll used; replaying it reproduces the results"`
	Rolls      []RollGroup `json:"rolls" jsonschema:"per-group die results in expression order"`
	DiceTotal  int         `json:"dice_total" jsonschema:"sum of all dice before the modifier"`
	Modifier   int         `json:"modifier" jsonschema:"flat modifier applied after the dice"`
	Total      int         `json:"total" jsonschema:"final total"`
}

// RollGroup is one dice group's results.
type RollGroup struct {
	Sides   int   `json:"sides" jsonschema:"die size"`
	Results []int `json:"results" jsonschema:"individual die results"`
}

// RollDiceTool defines the MCP tool schema for rolling dice.
func RollDiceTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "roll_dice",
		Description: "Rolls a dice expression such as 2d6+3 and returns every die alongside the total.",
	}
}

// RollDiceHandler executes a dice roll.
func RollDiceHandler() mcp.ToolHandlerFor[RollDiceInput, RollDiceResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RollDiceInput) (*mcp.CallToolResult, RollDiceResult, error) {
		expr, err := dice.ParseExpression(input.Expression)
		if err != nil {
			return nil, RollDiceResult{}, fmt.Errorf("parse expression: %w", err)
		}

		seed := input.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}

		rolled, err := dice.RollExpression(expr, seed)
		if err != nil {
			return nil, RollDiceResult{}, fmt.Errorf("roll %s: %w", expr.String(), err)
		}

		result := RollDiceResult{
			Expression: expr.String(),
			Seed:       seed,
			Rolls:      make([]RollGroup, len(rolled.Rolls)),
			DiceTotal:  rolled.DiceTotal,
			Modifier:   rolled.Modifier,
			Total:      rolled.Total,
		}
		for i, roll := range rolled.Rolls {
			result.Rolls[i] = RollGroup{Sides: roll.Sides, Results: roll.Results}
		}
		return nil, result, nil
	}
}
