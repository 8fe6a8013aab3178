package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBridgeLifecycleCalls(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	bridge := NewBridgeClient(server.URL, "secret", "dreamops", time.Second, nil)

	cases := []struct {
		name string
		call func() error
		path string
		key  string
		want string
	}{
		{
			name: "acknowledge",
			call: func() error { return bridge.Acknowledge(context.Background(), "inc-1") },
			path: "/api/v1/incidents/inc-1/acknowledge",
			key:  "actor",
			want: "dreamops",
		},
		{
			name: "note",
			call: func() error { return bridge.AddNote(context.Background(), "inc-1", "working on it") },
			path: "/api/v1/incidents/inc-1/notes",
			key:  "note",
			want: "working on it",
		},
		{
			name: "resolve",
			call: func() error { return bridge.Resolve(context.Background(), "inc-1", "verified fixed") },
			path: "/api/v1/incidents/inc-1/resolve",
			key:  "note",
			want: "verified fixed",
		},
		{
			name: "escalate",
			call: func() error { return bridge.Escalate(context.Background(), "inc-1", "automation exhausted") },
			path: "/api/v1/incidents/inc-1/escalate",
			key:  "reason",
			want: "automation exhausted",
		},
	}

	for _, tc := range cases {
		if err := tc.call(); err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if gotPath != tc.path {
			t.Fatalf("%s: expected path %s, got %s", tc.name, tc.path, gotPath)
		}
		if gotAuth != "Bearer secret" {
			t.Fatalf("%s: missing bearer token, got %q", tc.name, gotAuth)
		}
		if gotBody[tc.key] != tc.want {
			t.Fatalf("%s: expected %s=%q, got %q", tc.name, tc.key, tc.want, gotBody[tc.key])
		}
	}
}

func TestBridgeSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream maintenance"))
	}))
	defer server.Close()

	bridge := NewBridgeClient(server.URL, "", "dreamops", time.Second, nil)

	err := bridge.Resolve(context.Background(), "inc-1", "done")
	if err == nil {
		t.Fatalf("expected error from 502 response")
	}
	if !strings.Contains(err.Error(), "upstream maintenance") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestBridgeWithoutBaseURLNoOps(t *testing.T) {
	bridge := NewBridgeClient("", "", "", time.Second, nil)
	if err := bridge.Acknowledge(context.Background(), "inc-1"); err != nil {
		t.Fatalf("expected no-op without base url, got %v", err)
	}
}

func TestBridgeRequiresIncidentID(t *testing.T) {
	bridge := NewBridgeClient("http://localhost:1", "", "", time.Second, nil)
	if err := bridge.AddNote(context.Background(), "", "note"); err == nil {
		t.Fatalf("expected error for empty incident id")
	}
}
