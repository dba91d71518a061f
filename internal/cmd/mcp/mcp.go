// Package mcp parses MCP command flags and composes the assistant
// entrypoint.
package mcp

import (
	"context"
	"flag"
	"fmt"

	"github.com/hearthvtt/hearth/internal/assistant"
	entrypoint "github.com/hearthvtt/hearth/internal/platform/cmd"
)

// Config holds MCP command configuration.
type Config struct {
	DBPath    string `env:"HEARTH_DB_PATH"       envDefault:"hearth.db"`
	Transport string `env:"HEARTH_MCP_TRANSPORT" envDefault:"stdio"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "campaign database path")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport type: stdio")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP assistant adapter.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(context.Context) error {
		if err := assistant.Run(ctx, assistant.Config{
			DBPath:    cfg.DBPath,
			Transport: assistant.TransportKind(cfg.Transport),
		}); err != nil {
			return fmt.Errorf("serve mcp: %w", err)
		}
		return nil
	})
}
