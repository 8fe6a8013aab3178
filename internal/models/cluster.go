package models

// ActionRequest asks a cluster-operations provider to perform one operation.
type ActionRequest struct {
	RunID  string       `json:"run_id"`
	Action string       `json:"action"`
	Kind   ActionKind   `json:"kind"`
	Params ActionParams `json:"params"`
}

// ActionResult is the provider's account of one operation. Targets lists the
// resources the operation found or touched; diagnostics report findings
// through it.
type ActionResult struct {
	Success bool     `json:"success"`
	Output  string   `json:"output,omitempty"`
	Targets []string `json:"targets,omitempty"`
}

// QueryResult lists the resources still matching a condition. An empty match
// list means the condition has cleared.
type QueryResult struct {
	Matches []string `json:"matches,omitempty"`
	Detail  string   `json:"detail,omitempty"`
}
