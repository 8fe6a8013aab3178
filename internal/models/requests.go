package models

import "time"

// RawAlert is an incoming alert before normalization, as delivered by a
// monitoring webhook relay, the spool intake or the CLI. Unknown severities
// and missing optional fields are tolerated; ID and Title are required.
type RawAlert struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Severity       string            `json:"severity,omitempty"`
	Source         map[string]string `json:"source,omitempty"`
	ReceivedAt     string            `json:"received_at,omitempty"`
	CorrelationKey string            `json:"correlation_key,omitempty"`
}

// SubmitRequest is one remediation submission. An empty Mode falls back to
// the engine's configured default.
type SubmitRequest struct {
	Alert          RawAlert     `json:"alert"`
	Mode           AutonomyMode `json:"mode,omitempty"`
	CorrelationKey string       `json:"correlation_key,omitempty"`
}

// ListReportsRequest captures filters for stored execution reports.
type ListReportsRequest struct {
	Category       IncidentCategory
	State          RunState
	CorrelationKey string
	Since          time.Time
	Limit          int
}

// CategoryStats aggregates journal history for one incident category.
type CategoryStats struct {
	Category    IncidentCategory `json:"category"`
	Runs        int              `json:"runs"`
	Resolved    int              `json:"resolved"`
	SuccessRate float64          `json:"success_rate"`
	TopActions  []string         `json:"top_actions,omitempty"`
	LastSeen    time.Time        `json:"last_seen"`
}
