// Package mcp imports tools from Model Context Protocol servers into the
// tool registry.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/prismbot/prism/internal/config"
	"github.com/prismbot/prism/internal/observability"
	"github.com/prismbot/prism/internal/tools"
)

const protocolVersion = "2024-11-05"

// WrapName synthesizes the registry name for an imported MCP tool. The
// server prefix prevents collisions across servers and with builtin tools.
func WrapName(server, tool string) string {
	return server + "__" + tool
}

// Manager connects to configured MCP servers over stdio, lists their tools,
// and registers each under its wrapped name with the server's input schema
// taken verbatim.
type Manager struct {
	cfg      config.MCPSettings
	registry *tools.Registry
	log      *observability.Logger

	mu      sync.Mutex
	clients map[string]*client.Client
}

// NewManager creates an MCP manager targeting the given tool registry.
func NewManager(cfg config.MCPSettings, registry *tools.Registry, log *observability.Logger) *Manager {
	if log == nil {
		log = observability.NewTestLogger()
	}
	return &Manager{
		cfg:      cfg,
		registry: registry,
		log:      log,
		clients:  make(map[string]*client.Client),
	}
}

// LoadAll connects every configured server and registers its tools. A
// failing server is logged and skipped; startup proceeds with the rest.
func (m *Manager) LoadAll(ctx context.Context) {
	for name, server := range m.cfg.Servers {
		if err := m.loadServer(ctx, name, server); err != nil {
			m.log.Error("mcp server load failed, skipping", "server", name, "error", err)
		}
	}
}

func (m *Manager) loadServer(ctx context.Context, name string, server config.MCPServerSettings) error {
	if server.Command == "" {
		return fmt.Errorf("server %q has no command", name)
	}

	env := make([]string, 0, len(server.Env))
	for key, value := range server.Env {
		env = append(env, key+"="+value)
	}
	mcpClient, err := client.NewStdioMCPClient(server.Command, env, server.Args...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	if err := m.initialize(ctx, mcpClient); err != nil {
		mcpClient.Close()
		return err
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	m.mu.Lock()
	m.clients[name] = mcpClient
	m.mu.Unlock()

	registered := 0
	for _, serverTool := range listResp.Tools {
		bridged := m.bridge(name, serverTool)
		if err := m.registry.Register(bridged); err != nil {
			m.log.Warn("mcp tool registration failed",
				"server", name, "tool", serverTool.Name, "error", err)
			continue
		}
		registered++
	}
	m.log.Info("mcp server loaded", "server", name, "tools", registered)
	return nil
}

func (m *Manager) initialize(ctx context.Context, mcpClient *client.Client) error {
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("start client: %w", err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "prism", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = protocolVersion
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

// CallTool invokes a tool on a loaded server.
func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]any) (*tools.Result, error) {
	m.mu.Lock()
	mcpClient := m.clients[server]
	m.mu.Unlock()
	if mcpClient == nil {
		return nil, fmt.Errorf("mcp server %q not connected", server)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp call failed: %w", err)
	}

	var parts []string
	for _, content := range resp.Content {
		if text, ok := content.(mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return &tools.Result{
		Content: strings.Join(parts, "\n"),
		IsError: resp.IsError,
	}, nil
}

// Close shuts down all server connections.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, mcpClient := range m.clients {
		if err := mcpClient.Close(); err != nil {
			m.log.Warn("mcp client close failed", "server", name, "error", err)
		}
		delete(m.clients, name)
	}
}

func (m *Manager) bridge(server string, serverTool mcp.Tool) tools.Tool {
	schema, err := json.Marshal(serverTool.InputSchema)
	if err != nil || len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	description := strings.TrimSpace(serverTool.Description)
	if description == "" {
		description = fmt.Sprintf("MCP tool %s.%s", server, serverTool.Name)
	}
	underlying := serverTool.Name
	return &tools.FuncTool{
		ToolName:        WrapName(server, underlying),
		ToolDescription: description,
		ToolCategory:    tools.CategoryMCP,
		RawSchema:       schema,
		Handler: func(ctx context.Context, args json.RawMessage, ec tools.ExecContext) (*tools.Result, error) {
			var arguments map[string]any
			if len(args) > 0 {
				if err := json.Unmarshal(args, &arguments); err != nil {
					return nil, err
				}
			}
			return m.CallTool(ctx, server, underlying, arguments)
		},
	}
}
