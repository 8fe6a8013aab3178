package signal

import (
	"errors"
	"testing"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
)

func TestNormalizePreservesOriginals(t *testing.T) {
	n := NewNormalizer()
	n.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	raw := models.RawAlert{
		ID:          "alrt-1",
		Title:       "Pod payments-7f9d CrashLoopBackOff",
		Description: "container OOMKilled twice",
		Severity:    "P1",
		Source:      map[string]string{"cluster": "prod-east"},
	}
	sig, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if sig.Title != raw.Title || sig.Description != raw.Description {
		t.Fatalf("expected original text preserved, got %+v", sig)
	}
	if sig.Severity != models.SeverityCritical {
		t.Fatalf("expected P1 to map to critical, got %s", sig.Severity)
	}
	if sig.ReceivedAt.IsZero() {
		t.Fatal("expected received_at to default to clock")
	}

	raw.Source["cluster"] = "mutated"
	if sig.Source["cluster"] != "prod-east" {
		t.Fatal("expected signal source map to be a copy")
	}
}

func TestNormalizeParsesReceivedAt(t *testing.T) {
	n := NewNormalizer()
	sig, err := n.Normalize(models.RawAlert{ID: "a", Title: "t", ReceivedAt: "2025-05-04T10:30:00Z"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := time.Date(2025, 5, 4, 10, 30, 0, 0, time.UTC)
	if !sig.ReceivedAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, sig.ReceivedAt)
	}
}

func TestNormalizeRejectsMissingFields(t *testing.T) {
	n := NewNormalizer()
	cases := []models.RawAlert{
		{Title: "no id"},
		{ID: "no-title"},
		{ID: "  ", Title: "blank id"},
	}
	for _, raw := range cases {
		if _, err := n.Normalize(raw); !errors.Is(err, ErrInvalidSignal) {
			t.Fatalf("expected ErrInvalidSignal for %+v, got %v", raw, err)
		}
	}
}

func TestParseSeverityDefaultsMedium(t *testing.T) {
	if got := ParseSeverity("page-me-maybe"); got != models.SeverityMedium {
		t.Fatalf("expected medium fallback, got %s", got)
	}
	if got := ParseSeverity("sev2"); got != models.SeverityHigh {
		t.Fatalf("expected sev2 to map high, got %s", got)
	}
}

func TestMatchTextFoldsCase(t *testing.T) {
	sig := models.IncidentSignal{Title: "Pod OOMKilled", Description: "Memory Limit"}
	if got := MatchText(sig); got != "pod oomkilled memory limit" {
		t.Fatalf("unexpected match text %q", got)
	}
}
