package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
)

func TestClassifyCategories(t *testing.T) {
	classifier, err := NewClassifier("", nil)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	cases := []struct {
		title       string
		description string
		want        models.IncidentCategory
	}{
		{"Pod payments-api OOMKilled", "container restarted after out of memory", models.CategoryOOMKill},
		{"ImagePullBackOff on checkout", "manifest unknown", models.CategoryImagePullError},
		{"Pod api CrashLoopBackOff", "back-off restarting failed container", models.CategoryPodCrash},
		{"CPU throttling on workers", "cfs quota exceeded", models.CategoryCPUThrottle},
		{"Service storefront unavailable", "upstream connect error, 503", models.CategoryServiceDown},
		{"Deployment failed for billing", "ProgressDeadlineExceeded", models.CategoryDeploymentFailed},
		{"Node ip-10-0-3-17 NotReady", "kubelet stopped posting status", models.CategoryNodeIssue},
		{"Disk latency spike on database", "p99 write latency above threshold", models.CategoryGeneric},
	}
	for _, tc := range cases {
		sig := models.IncidentSignal{ID: "s", Title: tc.title, Description: tc.description}
		if got := classifier.Classify(sig); got != tc.want {
			t.Fatalf("classify %q: expected %s, got %s", tc.title, tc.want, got)
		}
	}
}

func TestClassifyOOMBeatsPodCrash(t *testing.T) {
	classifier, err := NewClassifier("", nil)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	sig := models.IncidentSignal{
		ID:          "s",
		Title:       "Pod api CrashLoopBackOff",
		Description: "last state OOMKilled, exit code 137",
	}
	if got := classifier.Classify(sig); got != models.CategoryOOMKill {
		t.Fatalf("expected oom_kill to outrank pod_crash, got %s", got)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	classifier, err := NewClassifier("", nil)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	sig := models.IncidentSignal{ID: "s", Title: "service checkout unreachable", Description: "503 from ingress"}
	first := classifier.Classify(sig)
	for i := 0; i < 50; i++ {
		if got := classifier.Classify(sig); got != first {
			t.Fatalf("classification changed between runs: %s then %s", first, got)
		}
	}
}

func TestClassifierCustomPack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	pack := []byte("rules:\n  - id: custom\n    category: node_issue\n    contains: [\"zone outage\"]\n")
	if err := os.WriteFile(path, pack, 0o644); err != nil {
		t.Fatalf("write rule pack: %v", err)
	}

	classifier, err := NewClassifier(path, nil)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	sig := models.IncidentSignal{ID: "s", Title: "zone outage in eu-west"}
	if got := classifier.Classify(sig); got != models.CategoryNodeIssue {
		t.Fatalf("expected custom pack to classify node_issue, got %s", got)
	}
	if got := classifier.Classify(models.IncidentSignal{ID: "s2", Title: "OOMKilled"}); got != models.CategoryGeneric {
		t.Fatalf("custom pack should replace embedded rules, got %s", got)
	}
}

func TestClassifierRejectsUnknownCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	pack := []byte("rules:\n  - id: bad\n    category: volcano\n    contains: [\"lava\"]\n")
	if err := os.WriteFile(path, pack, 0o644); err != nil {
		t.Fatalf("write rule pack: %v", err)
	}
	if _, err := NewClassifier(path, nil); err == nil {
		t.Fatal("expected error for unknown category")
	}
}
