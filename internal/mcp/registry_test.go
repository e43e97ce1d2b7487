package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"parley/internal/config"
)

// stubConnector hands out canned tool lists per server name and fails
// servers listed in fail. It counts Connect calls for rebuild assertions.
type stubConnector struct {
	mu       sync.Mutex
	tools    map[string][]string
	fail     map[string]bool
	connects int
}

func (s *stubConnector) Connect(_ context.Context, server config.ToolServerConfig) (*Connection, error) {
	s.mu.Lock()
	s.connects++
	s.mu.Unlock()
	if s.fail[server.Name] {
		return nil, &ConnectionError{Server: server.Name, Endpoint: server.Endpoint, Cause: fmt.Errorf("refused")}
	}
	return &Connection{Name: server.Name, Endpoint: server.Endpoint}, nil
}

func (s *stubConnector) ListTools(_ context.Context, conn *Connection) ([]Tool, error) {
	var out []Tool
	for _, name := range s.tools[conn.Name] {
		out = append(out, Tool{Name: name, Server: conn.Name, Caller: conn})
	}
	return out, nil
}

func servers(names ...string) []config.ToolServerConfig {
	out := make([]config.ToolServerConfig, 0, len(names))
	for _, n := range names {
		out = append(out, config.ToolServerConfig{Name: n, Endpoint: "stub://" + n, Enabled: true})
	}
	return out
}

func toolNames(tools []Tool) []string {
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Name)
	}
	return out
}

func TestInitializeSkipsFailingServer(t *testing.T) {
	conn := &stubConnector{
		tools: map[string][]string{
			"alpha": {"a1", "a2"},
			"gamma": {"g1"},
		},
		fail: map[string]bool{"beta": true},
	}
	r := NewRegistry(conn)
	r.Initialize(context.Background(), servers("alpha", "beta", "gamma"))

	got := toolNames(r.Tools())
	want := []string{"a1", "a2", "g1"}
	if len(got) != len(want) {
		t.Fatalf("tools = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tools = %v, want %v (configuration order)", got, want)
			break
		}
	}
}

func TestInitializeSkipsDisabledServer(t *testing.T) {
	conn := &stubConnector{tools: map[string][]string{"alpha": {"a1"}, "beta": {"b1"}}}
	cfgs := servers("alpha", "beta")
	cfgs[1].Enabled = false

	r := NewRegistry(conn)
	r.Initialize(context.Background(), cfgs)

	if got := toolNames(r.Tools()); len(got) != 1 || got[0] != "a1" {
		t.Errorf("tools = %v, want [a1]", got)
	}
	if conn.connects != 1 {
		t.Errorf("connects = %d, want 1", conn.connects)
	}
}

func TestResetDiscardsEverything(t *testing.T) {
	conn := &stubConnector{tools: map[string][]string{"alpha": {"a1"}}}
	r := NewRegistry(conn)
	r.Initialize(context.Background(), servers("alpha"))
	if len(r.Tools()) != 1 {
		t.Fatalf("expected one tool before reset")
	}

	r.Reset()
	if got := r.Tools(); len(got) != 0 {
		t.Errorf("tools after reset = %v, want none", got)
	}
}

func TestReinitializeIsIdempotent(t *testing.T) {
	conn := &stubConnector{tools: map[string][]string{"alpha": {"a1"}, "beta": {"b1"}}}
	r := NewRegistry(conn)
	cfgs := servers("alpha", "beta")

	r.Initialize(context.Background(), cfgs)
	first := toolNames(r.Tools())
	r.Initialize(context.Background(), cfgs)
	second := toolNames(r.Tools())

	if len(first) != len(second) {
		t.Fatalf("tool lists differ: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("tool lists differ: %v vs %v", first, second)
			break
		}
	}
	if conn.connects != 4 {
		t.Errorf("connects = %d, want 4 (fresh connections each rebuild)", conn.connects)
	}
}

// slowConnector blocks inside Connect once enter/hold are armed, keeping
// a rebuild open so readers can be probed mid-flight.
type slowConnector struct {
	stubConnector
	enter chan struct{}
	hold  chan struct{}
}

func (s *slowConnector) Connect(ctx context.Context, server config.ToolServerConfig) (*Connection, error) {
	if s.enter != nil {
		s.enter <- struct{}{}
		<-s.hold
	}
	return s.stubConnector.Connect(ctx, server)
}

func TestToolsNeverObservesPartialRebuild(t *testing.T) {
	sc := &slowConnector{
		stubConnector: stubConnector{tools: map[string][]string{"alpha": {"a1", "a2"}}},
	}
	r := NewRegistry(sc)
	r.Initialize(context.Background(), servers("alpha"))

	sc.tools["beta"] = []string{"b1"}
	sc.enter = make(chan struct{})
	sc.hold = make(chan struct{})

	done := make(chan struct{})
	go func() {
		r.Initialize(context.Background(), servers("beta"))
		close(done)
	}()
	<-sc.enter // rebuild is underway, connection held open

	// While the rebuild is blocked, readers must keep seeing the full
	// previous snapshot.
	for range 100 {
		if got := strings.Join(toolNames(r.Tools()), ","); got != "a1,a2" {
			t.Fatalf("mid-rebuild tools = %q, want the previous snapshot", got)
		}
	}

	// Keep observing through the swap: every read is one complete
	// snapshot or the other, never a mixture.
	stop := make(chan struct{})
	obsDone := make(chan struct{})
	var violations []string
	go func() {
		defer close(obsDone)
		for {
			got := strings.Join(toolNames(r.Tools()), ",")
			if got != "a1,a2" && got != "b1" {
				violations = append(violations, got)
			}
			select {
			case <-stop:
				return
			default:
			}
		}
	}()

	close(sc.hold)
	<-done
	close(stop)
	<-obsDone

	if len(violations) != 0 {
		t.Errorf("observed partial snapshots: %v", violations)
	}
	if got := strings.Join(toolNames(r.Tools()), ","); got != "b1" {
		t.Errorf("tools after rebuild = %q, want b1", got)
	}
}

func TestToolsOnEmptyRegistry(t *testing.T) {
	r := NewRegistry(&stubConnector{})
	if got := r.Tools(); len(got) != 0 {
		t.Errorf("tools = %v, want none", got)
	}
}

func TestCallWithoutCaller(t *testing.T) {
	tool := Tool{Name: "orphan", Server: "alpha"}
	if _, err := tool.Call(context.Background(), nil); err == nil {
		t.Error("expected error calling a tool with no live connection")
	}
}
