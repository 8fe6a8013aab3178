package models

import (
	"fmt"
	"time"
)

// ActionKind enumerates every cluster operation the engine may request.
// Providers switch on the kind exhaustively; an unknown kind is a programming
// error surfaced by ActionParams.Validate, not a runtime dispatch miss.
type ActionKind string

const (
	ActionIdentifyPods         ActionKind = "identify_pods"
	ActionIdentifyNodes        ActionKind = "identify_nodes"
	ActionCollectPodLogs       ActionKind = "collect_pod_logs"
	ActionRestartPods          ActionKind = "restart_pods"
	ActionDeletePods           ActionKind = "delete_pods"
	ActionIncreaseMemoryLimits ActionKind = "increase_memory_limits"
	ActionRestoreMemoryLimits  ActionKind = "restore_memory_limits"
	ActionAdjustCPULimits      ActionKind = "adjust_cpu_limits"
	ActionRestoreCPULimits     ActionKind = "restore_cpu_limits"
	ActionRestartDeployment    ActionKind = "restart_deployment"
	ActionRollbackDeployment   ActionKind = "rollback_deployment"
	ActionScaleDeployment      ActionKind = "scale_deployment"
	ActionUpdateImage          ActionKind = "update_image"
	ActionCordonNode           ActionKind = "cordon_node"
	ActionUncordonNode         ActionKind = "uncordon_node"
	ActionDrainNode            ActionKind = "drain_node"
	ActionCheckEndpoint        ActionKind = "check_endpoint"
)

// Mutating reports whether the kind changes cluster state. Diagnostic kinds
// only read.
func (k ActionKind) Mutating() bool {
	switch k {
	case ActionIdentifyPods, ActionIdentifyNodes, ActionCollectPodLogs, ActionCheckEndpoint:
		return false
	}
	return true
}

// RiskLevel grades the blast radius of a resolution action.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ActionParams carries the typed arguments for a cluster operation. Only the
// fields relevant to the action kind are set; Validate enforces the per-kind
// requirements.
type ActionParams struct {
	Namespace   string `json:"namespace,omitempty"`
	Selector    string `json:"selector,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Deployment  string `json:"deployment,omitempty"`
	Container   string `json:"container,omitempty"`
	MemoryLimit string `json:"memory_limit,omitempty"`
	CPULimit    string `json:"cpu_limit,omitempty"`
	Image       string `json:"image,omitempty"`
	Replicas    int    `json:"replicas,omitempty"`
	Revision    int    `json:"revision,omitempty"`
	Node        string `json:"node,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
}

// Validate checks that the parameters required by kind are present.
func (p ActionParams) Validate(kind ActionKind) error {
	switch kind {
	case ActionIdentifyPods, ActionCollectPodLogs, ActionRestartPods, ActionDeletePods:
		if p.Namespace == "" || (p.Selector == "" && p.Reason == "") {
			return fmt.Errorf("%s requires namespace and a selector or reason", kind)
		}
	case ActionIdentifyNodes:
		if p.Reason == "" && p.Node == "" {
			return fmt.Errorf("%s requires a reason or node", kind)
		}
	case ActionIncreaseMemoryLimits:
		if p.Namespace == "" || p.MemoryLimit == "" || (p.Deployment == "" && p.Selector == "") {
			return fmt.Errorf("%s requires namespace, memory_limit and a deployment or selector", kind)
		}
	case ActionAdjustCPULimits:
		if p.Namespace == "" || p.CPULimit == "" || (p.Deployment == "" && p.Selector == "") {
			return fmt.Errorf("%s requires namespace, cpu_limit and a deployment or selector", kind)
		}
	case ActionRestoreMemoryLimits, ActionRestoreCPULimits:
		// An empty limit tells the provider to restore the last recorded value.
		if p.Namespace == "" || (p.Deployment == "" && p.Selector == "") {
			return fmt.Errorf("%s requires namespace and a deployment or selector", kind)
		}
	case ActionRestartDeployment, ActionRollbackDeployment:
		if p.Namespace == "" || p.Deployment == "" {
			return fmt.Errorf("%s requires namespace and deployment", kind)
		}
	case ActionScaleDeployment:
		if p.Namespace == "" || p.Deployment == "" || p.Replicas <= 0 {
			return fmt.Errorf("%s requires namespace, deployment and positive replicas", kind)
		}
	case ActionUpdateImage:
		if p.Namespace == "" || p.Deployment == "" || p.Image == "" {
			return fmt.Errorf("%s requires namespace, deployment and image", kind)
		}
	case ActionCordonNode, ActionUncordonNode, ActionDrainNode:
		if p.Node == "" {
			return fmt.Errorf("%s requires node", kind)
		}
	case ActionCheckEndpoint:
		if p.Endpoint == "" {
			return fmt.Errorf("%s requires endpoint", kind)
		}
	default:
		return fmt.Errorf("unknown action kind %q", kind)
	}
	return nil
}

// ResolutionAction is one step of a remediation strategy. Name is unique
// within a strategy's output and is what Prerequisites refer to.
type ResolutionAction struct {
	Name              string        `json:"name"`
	Kind              ActionKind    `json:"kind"`
	Description       string        `json:"description,omitempty"`
	Params            ActionParams  `json:"params"`
	Confidence        float64       `json:"confidence"`
	Risk              RiskLevel     `json:"risk"`
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	RollbackPossible  bool          `json:"rollback_possible,omitempty"`
	Prerequisites     []string      `json:"prerequisites,omitempty"`
	// RequiresFindings marks a corrective action that only makes sense when a
	// prerequisite diagnostic found unhealthy targets. Zero findings skip it.
	RequiresFindings bool `json:"requires_findings,omitempty"`
}

// CheckKind enumerates the cluster conditions the verifier can query.
type CheckKind string

const (
	CheckPodsInState           CheckKind = "pods_in_state"
	CheckDeploymentUnavailable CheckKind = "deployment_unavailable"
	CheckEndpointDown          CheckKind = "endpoint_down"
	CheckNodesNotReady         CheckKind = "nodes_not_ready"
)

// ConditionQuery describes a verifiable cluster condition. A run is verified
// when its condition query returns zero matches.
type ConditionQuery struct {
	Check       CheckKind `json:"check"`
	Namespace   string    `json:"namespace,omitempty"`
	Selector    string    `json:"selector,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Deployment  string    `json:"deployment,omitempty"`
	Endpoint    string    `json:"endpoint,omitempty"`
	Description string    `json:"description,omitempty"`
}
