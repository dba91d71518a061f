// Package assistant provides the MCP server that lets an AI co-GM read
// the campaign database and reason about rules without touching live
// table sessions. Every tool is read-only; mutations stay on the
// websocket gateway where approval and broadcast rules apply.
package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hearthvtt/hearth/internal/table/storage"
	"github.com/hearthvtt/hearth/internal/table/storage/sqlite"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "Hearth Table MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
)

// Config configures the MCP server.
type Config struct {
	DBPath    string
	Transport TransportKind
}

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
	store     *sqlite.Store
}

// New creates a configured MCP server over the campaign database.
func New(dbPath string) (*Server, error) {
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open campaign store at %s: %w", dbPath, err)
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	registerTableTools(mcpServer, store)

	return &Server{mcpServer: mcpServer, store: store}, nil
}

func registerTableTools(mcpServer *mcp.Server, store storage.Stores) {
	mcp.AddTool(mcpServer, RollDiceTool(), RollDiceHandler())
	mcp.AddTool(mcpServer, ListActorsTool(), ListActorsHandler(store))
	mcp.AddTool(mcpServer, ActorStatusTool(), ActorStatusHandler(store))
	mcp.AddTool(mcpServer, CheckAttackTool(), CheckAttackHandler(store))
	mcp.AddTool(mcpServer, SpellSaveDCTool(), SpellSaveDCHandler(store))
}

// Run creates and serves the MCP server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	if cfg.Transport != TransportStdio {
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}

	server, err := New(cfg.DBPath)
	if err != nil {
		return err
	}
	return server.serveWithTransport(ctx, &mcp.StdioTransport{})
}

// Serve starts the MCP server on stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

// Close releases the campaign store held by the server.
func (s *Server) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return err
	}
	s.store = nil
	return nil
}

// serveWithTransport starts the MCP server using the provided transport.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	closeErr := s.Close()
	if closeErr != nil {
		if err == nil {
			return fmt.Errorf("close campaign store: %w", closeErr)
		}
		return fmt.Errorf("serve MCP: %v; close campaign store: %w", err, closeErr)
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
