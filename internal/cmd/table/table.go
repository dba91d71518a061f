// Package table parses table command flags and composes the websocket
// gateway entrypoint.
package table

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/hearthvtt/hearth/internal/platform/cmd"
	server "github.com/hearthvtt/hearth/internal/table/app"
	"github.com/hearthvtt/hearth/internal/table/storage/sqlite"
)

// Config holds table command configuration.
type Config struct {
	HTTPAddr        string        `env:"HEARTH_TABLE_HTTP_ADDR"        envDefault:":8090"`
	DBPath          string        `env:"HEARTH_DB_PATH"                envDefault:"hearth.db"`
	RollTimeout     time.Duration `env:"HEARTH_TABLE_ROLL_TIMEOUT"`
	ApprovalTimeout time.Duration `env:"HEARTH_TABLE_APPROVAL_TIMEOUT"`
	AutoApprove     bool          `env:"HEARTH_TABLE_AUTO_APPROVE"     envDefault:"false"`
	AutorollNPC     bool          `env:"HEARTH_TABLE_AUTOROLL_NPC"     envDefault:"true"`
	AutorollSeed    int64         `env:"HEARTH_TABLE_AUTOROLL_SEED"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "table HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "campaign database path")
	fs.DurationVar(&cfg.RollTimeout, "roll-timeout", cfg.RollTimeout, "how long an action waits for one remote roll")
	fs.DurationVar(&cfg.ApprovalTimeout, "approval-timeout", cfg.ApprovalTimeout, "how long a player action waits for the GM")
	fs.BoolVar(&cfg.AutoApprove, "auto-approve", cfg.AutoApprove, "skip GM approval for player actions")
	fs.BoolVar(&cfg.AutorollNPC, "autoroll-npc", cfg.AutorollNPC, "resolve GM-run creature rolls automatically")
	fs.Int64Var(&cfg.AutorollSeed, "autoroll-seed", cfg.AutorollSeed, "seed for the NPC auto-roller, 0 means time-based")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the campaign store and serves the table gateway.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTable, func(context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open campaign store: %w", err)
		}
		defer func() { _ = store.Close() }()

		grant, err := server.LoadJoinGrantConfigFromEnv(time.Now)
		if err != nil {
			return fmt.Errorf("load join grant config: %w", err)
		}

		if err := server.Run(ctx, server.Config{
			HTTPAddr:        cfg.HTTPAddr,
			Stores:          store,
			Grant:           grant,
			RollTimeout:     cfg.RollTimeout,
			ApprovalTimeout: cfg.ApprovalTimeout,
			AutoApprove:     cfg.AutoApprove,
			AutorollNPC:     cfg.AutorollNPC,
			AutorollSeed:    cfg.AutorollSeed,
		}); err != nil {
			return fmt.Errorf("serve table: %w", err)
		}
		return nil
	})
}
