package mcp

import (
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestTransportForHTTP(t *testing.T) {
	for _, endpoint := range []string{"http://localhost:9000/mcp", "https://tools.example.com/mcp"} {
		tr, err := transportFor(endpoint)
		if err != nil {
			t.Fatalf("transportFor(%q): %v", endpoint, err)
		}
		st, ok := tr.(*sdk.StreamableClientTransport)
		if !ok {
			t.Fatalf("transportFor(%q) = %T, want streamable HTTP", endpoint, tr)
		}
		if st.Endpoint != endpoint {
			t.Errorf("endpoint = %q", st.Endpoint)
		}
	}
}

func TestTransportForCommand(t *testing.T) {
	tr, err := transportFor("npx -y weather-server --port 3001")
	if err != nil {
		t.Fatalf("transportFor: %v", err)
	}
	ct, ok := tr.(*sdk.CommandTransport)
	if !ok {
		t.Fatalf("transport = %T, want command", tr)
	}
	if got := ct.Command.Args; len(got) != 5 || got[0] != "npx" {
		t.Errorf("command args = %v", got)
	}
}

func TestTransportForEmptyEndpoint(t *testing.T) {
	if _, err := transportFor("   "); err == nil {
		t.Error("expected error for blank endpoint")
	}
}
