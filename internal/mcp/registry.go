package mcp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"parley/internal/config"
	"parley/internal/core"
)

// registryState is an immutable snapshot of the tool list plus the
// connections that own those tools. Readers only ever see a complete
// snapshot, never a half-rebuilt one.
type registryState struct {
	connections []*Connection
	tools       []Tool
}

// Registry owns the authoritative set of tool server connections and the
// flattened tool list offered to the chat backend. Rebuilds are wholesale:
// there is no partial or incremental refresh.
type Registry struct {
	connector Connector

	mu    sync.Mutex // serializes Reset/Initialize
	state atomic.Pointer[registryState]
}

func NewRegistry(connector Connector) *Registry {
	r := &Registry{connector: connector}
	r.state.Store(&registryState{})
	return r
}

// Reset discards all connections and tools unconditionally.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.state.Swap(&registryState{})
	for _, conn := range old.connections {
		conn.Close()
	}
}

// Initialize dials every enabled server, skipping (and logging) any that
// fail, then lists tools on each live connection and swaps the resulting
// snapshot in. Servers are dialed concurrently but the flattened tool
// list keeps configuration order, then intra-server order.
func (r *Registry) Initialize(ctx context.Context, servers []config.ToolServerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer core.LogDuration(core.GetLogger(), "tool_registry_rebuild", time.Now())

	conns := make([]*Connection, len(servers))
	var wg sync.WaitGroup
	for i, server := range servers {
		if !server.Enabled {
			continue
		}
		wg.Add(1)
		go func(i int, server config.ToolServerConfig) {
			defer wg.Done()
			log := core.WithServer(core.GetLogger(), server.Name)
			conn, err := r.connector.Connect(ctx, server)
			if err != nil {
				log.Warnw("Tool server connection failed", "endpoint", server.Endpoint, "error", err)
				return
			}
			log.Infow("Connected to tool server", "identity", conn.ServerName+" "+conn.ServerVersion)
			conns[i] = conn
		}(i, server)
	}
	wg.Wait()

	next := &registryState{}
	for _, conn := range conns {
		if conn == nil {
			continue
		}
		tools, err := r.connector.ListTools(ctx, conn)
		if err != nil {
			core.WithServer(core.GetLogger(), conn.Name).Warnw("Tool listing failed", "error", err)
			conn.Close()
			continue
		}
		next.connections = append(next.connections, conn)
		next.tools = append(next.tools, tools...)
	}
	core.GetLogger().Infow("Tool registry rebuilt", "servers", len(next.connections), "tools", len(next.tools))

	old := r.state.Swap(next)
	for _, conn := range old.connections {
		conn.Close()
	}
}

// Tools returns the current flattened tool list. Safe at any time,
// including when nothing is connected.
func (r *Registry) Tools() []Tool {
	return r.state.Load().tools
}
