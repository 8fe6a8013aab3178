package models

import "time"

// IncidentSignal is the normalized, immutable description of one incident
// occurrence. Title and Description keep the original text; matching happens
// on derived lowercase copies that are never stored here.
type IncidentSignal struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Severity    Severity          `json:"severity"`
	Source      map[string]string `json:"source,omitempty"`
	ReceivedAt  time.Time         `json:"received_at"`
}

// IncidentCategory enumerates the failure classes the engine knows how to
// remediate. Classification always lands on exactly one of these.
type IncidentCategory string

const (
	CategoryPodCrash         IncidentCategory = "pod_crash"
	CategoryImagePullError   IncidentCategory = "image_pull_error"
	CategoryOOMKill          IncidentCategory = "oom_kill"
	CategoryCPUThrottle      IncidentCategory = "cpu_throttle"
	CategoryServiceDown      IncidentCategory = "service_down"
	CategoryDeploymentFailed IncidentCategory = "deployment_failed"
	CategoryNodeIssue        IncidentCategory = "node_issue"
	CategoryGeneric          IncidentCategory = "generic"
)

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)
