// Package mcp owns the tool server lifecycle: dialing servers, listing
// their tools, and holding the registry snapshot the chat backend reads.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"parley/internal/config"
)

// Tool listing is rare and expensive to retry, so once a connection is up
// it is allowed to idle more or less indefinitely.
const idleTimeout = 24 * time.Hour

// Connection is one live session with a tool server.
type Connection struct {
	Name          string
	Endpoint      string
	ServerName    string
	ServerVersion string

	session   *sdk.ClientSession
	closeOnce sync.Once
}

// CallTool invokes a named tool and returns the raw result document
// (the MCP content envelope), opaque to callers.
func (c *Connection) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	res, err := c.session.CallTool(ctx, &sdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, &ConnectionError{Server: c.Name, Endpoint: c.Endpoint, Cause: err}
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, &ProtocolError{Server: c.Name, Message: "unencodable tool result", Cause: err}
	}
	return raw, nil
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		if c.session != nil {
			_ = c.session.Close()
		}
	})
}

// Connector establishes sessions with tool servers and lists their tools.
type Connector interface {
	Connect(ctx context.Context, server config.ToolServerConfig) (*Connection, error)
	ListTools(ctx context.Context, conn *Connection) ([]Tool, error)
}

// SDKConnector is the production Connector on the official MCP SDK.
// Endpoints starting with http:// or https:// use the streamable HTTP
// transport; anything else is treated as a command line to exec.
type SDKConnector struct {
	impl *sdk.Implementation
}

func NewConnector(version string) *SDKConnector {
	return &SDKConnector{
		impl: &sdk.Implementation{Name: "parley", Version: version},
	}
}

func (s *SDKConnector) Connect(ctx context.Context, server config.ToolServerConfig) (*Connection, error) {
	transport, err := transportFor(server.Endpoint)
	if err != nil {
		return nil, &ConnectionError{Server: server.Name, Endpoint: server.Endpoint, Cause: err}
	}

	client := sdk.NewClient(s.impl, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, &ConnectionError{Server: server.Name, Endpoint: server.Endpoint, Cause: err}
	}

	conn := &Connection{
		Name:     server.Name,
		Endpoint: server.Endpoint,
		session:  session,
	}
	if res := session.InitializeResult(); res != nil && res.ServerInfo != nil {
		conn.ServerName = res.ServerInfo.Name
		conn.ServerVersion = res.ServerInfo.Version
	}
	return conn, nil
}

func (s *SDKConnector) ListTools(ctx context.Context, conn *Connection) ([]Tool, error) {
	var out []Tool
	for tool, err := range conn.session.Tools(ctx, nil) {
		if err != nil {
			return nil, &ProtocolError{Server: conn.Name, Message: "listing tools", Cause: err}
		}
		if tool == nil {
			continue
		}
		out = append(out, Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
			Server:      conn.Name,
			Caller:      conn,
		})
	}
	return out, nil
}

func transportFor(endpoint string) (sdk.Transport, error) {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return &sdk.StreamableClientTransport{
			Endpoint:   endpoint,
			HTTPClient: &http.Client{Timeout: idleTimeout},
		}, nil
	}
	parts := strings.Fields(endpoint)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty tool server endpoint")
	}
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Stderr = os.Stderr
	return &sdk.CommandTransport{Command: cmd}, nil
}
