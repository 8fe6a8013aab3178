package clusterops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
	"github.com/SkySingh04/DreamOps-sub000/internal/utils"
)

func TestAgentClientExecute(t *testing.T) {
	var gotAuth string
	var gotReq models.ActionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/actions/execute" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"output":  "restarted 2 pods",
			"targets": []string{"api-1", "api-2"},
		})
	}))
	defer server.Close()

	client := NewAgentClient(server.URL, "/api/v1/actions/execute", "/api/v1/conditions/query", "sekret", time.Second)
	result, err := client.Execute(context.Background(), models.ActionRequest{
		RunID:  "run-1",
		Action: "restart_error_pods",
		Kind:   models.ActionRestartPods,
		Params: models.ActionParams{Namespace: "prod", Reason: "Error"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success || len(result.Targets) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if gotAuth != "Bearer sekret" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if gotReq.Kind != models.ActionRestartPods || gotReq.RunID != "run-1" {
		t.Fatalf("unexpected wire request %+v", gotReq)
	}
}

func TestAgentClientExecuteRejectsInvalidParams(t *testing.T) {
	client := NewAgentClient("http://localhost:1", "/x", "/y", "", time.Second)
	_, err := client.Execute(context.Background(), models.ActionRequest{
		Kind:   models.ActionRestartPods,
		Params: models.ActionParams{},
	})
	if err == nil {
		t.Fatal("expected validation error before any network call")
	}
}

func TestAgentClientQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cond models.ConditionQuery
		if err := json.NewDecoder(r.Body).Decode(&cond); err != nil {
			t.Fatalf("decode condition: %v", err)
		}
		if cond.Check != models.CheckPodsInState {
			t.Fatalf("unexpected check %s", cond.Check)
		}
		json.NewEncoder(w).Encode(map[string]any{"matches": []string{"api-1"}, "detail": "1 pod still OOMKilled"})
	}))
	defer server.Close()

	client := NewAgentClient(server.URL, "/exec", "/query", "", time.Second)
	result, err := client.Query(context.Background(), models.ConditionQuery{
		Check:     models.CheckPodsInState,
		Namespace: "prod",
		Reason:    "OOMKilled",
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(result.Matches) != 1 || result.Matches[0] != "api-1" {
		t.Fatalf("unexpected query result %+v", result)
	}
}

func TestAgentClientSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewAgentClient(server.URL, "/exec", "/query", "", time.Second)
	_, err := client.Query(context.Background(), models.ConditionQuery{Check: models.CheckPodsInState})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
}

func TestAgentClientRequiresBaseURL(t *testing.T) {
	client := NewAgentClient("", "/exec", "/query", "", time.Second)
	if _, err := client.Execute(context.Background(), models.ActionRequest{
		Kind:   models.ActionIdentifyPods,
		Params: models.ActionParams{Namespace: "prod", Reason: "Error"},
	}); err == nil {
		t.Fatal("expected error without base URL")
	}
}
