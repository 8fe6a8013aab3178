package strategy

import (
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
)

// RuntimeContext carries cluster defaults that strategies fold into action
// parameters. It is read-only from the strategy's point of view.
type RuntimeContext struct {
	Namespace   string
	MemoryLimit string
	CPULimit    string
}

// StrategyFunc builds the ordered action plan for one incident category.
// Diagnostics come before the corrective actions that depend on them.
type StrategyFunc func(sig models.IncidentSignal, rctx RuntimeContext) []models.ResolutionAction

// Library resolves incident categories to strategies. Strategies are pure:
// same signal and context, same plan.
type Library struct {
	strategies map[models.IncidentCategory]StrategyFunc
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{strategies: make(map[models.IncidentCategory]StrategyFunc)}
}

// DefaultLibrary returns the built-in strategy catalog covering every
// category.
func DefaultLibrary() *Library {
	l := NewLibrary()
	l.Register(models.CategoryOOMKill, oomKillStrategy)
	l.Register(models.CategoryPodCrash, podCrashStrategy)
	l.Register(models.CategoryImagePullError, imagePullStrategy)
	l.Register(models.CategoryCPUThrottle, cpuThrottleStrategy)
	l.Register(models.CategoryServiceDown, serviceDownStrategy)
	l.Register(models.CategoryDeploymentFailed, deploymentFailedStrategy)
	l.Register(models.CategoryNodeIssue, nodeIssueStrategy)
	l.Register(models.CategoryGeneric, genericStrategy)
	return l
}

// Register installs or replaces the strategy for a category.
func (l *Library) Register(category models.IncidentCategory, fn StrategyFunc) {
	l.strategies[category] = fn
}

// ActionsFor returns the plan for the category. Actions whose parameters do
// not validate for their kind are dropped, along with anything that listed a
// dropped action as prerequisite. Unknown categories use the generic
// strategy.
func (l *Library) ActionsFor(category models.IncidentCategory, sig models.IncidentSignal, rctx RuntimeContext) []models.ResolutionAction {
	fn, ok := l.strategies[category]
	if !ok {
		fn = l.strategies[models.CategoryGeneric]
	}
	if fn == nil {
		return nil
	}
	return pruneInvalid(fn(sig, rctx))
}

func pruneInvalid(actions []models.ResolutionAction) []models.ResolutionAction {
	kept := make([]models.ResolutionAction, 0, len(actions))
	dropped := make(map[string]bool)
	for _, action := range actions {
		if err := action.Params.Validate(action.Kind); err != nil {
			dropped[action.Name] = true
			continue
		}
		missingPrereq := false
		for _, prereq := range action.Prerequisites {
			if dropped[prereq] {
				missingPrereq = true
				break
			}
		}
		if missingPrereq {
			dropped[action.Name] = true
			continue
		}
		kept = append(kept, action)
	}
	return kept
}

func oomKillStrategy(sig models.IncidentSignal, rctx RuntimeContext) []models.ResolutionAction {
	ns, deployment, selector := target(sig, rctx)
	return []models.ResolutionAction{
		{
			Name:              "identify_oom_pods",
			Kind:              models.ActionIdentifyPods,
			Description:       "List pods recently OOMKilled",
			Params:            models.ActionParams{Namespace: ns, Selector: selector, Reason: "OOMKilled"},
			Confidence:        0.95,
			Risk:              models.RiskLow,
			EstimatedDuration: 10 * time.Second,
		},
		{
			Name:              "increase_memory_limits",
			Kind:              models.ActionIncreaseMemoryLimits,
			Description:       "Raise memory limits for the OOMKilled workload",
			Params:            models.ActionParams{Namespace: ns, Deployment: deployment, Selector: selector, MemoryLimit: rctx.MemoryLimit},
			Confidence:        0.85,
			Risk:              models.RiskMedium,
			EstimatedDuration: 30 * time.Second,
			RollbackPossible:  true,
			Prerequisites:     []string{"identify_oom_pods"},
			RequiresFindings:  true,
		},
	}
}

func podCrashStrategy(sig models.IncidentSignal, rctx RuntimeContext) []models.ResolutionAction {
	ns, _, selector := target(sig, rctx)
	return []models.ResolutionAction{
		{
			Name:              "identify_crashing_pods",
			Kind:              models.ActionIdentifyPods,
			Description:       "List pods stuck in a crash loop",
			Params:            models.ActionParams{Namespace: ns, Selector: selector, Reason: "CrashLoopBackOff"},
			Confidence:        0.95,
			Risk:              models.RiskLow,
			EstimatedDuration: 10 * time.Second,
		},
		{
			Name:              "collect_crash_logs",
			Kind:              models.ActionCollectPodLogs,
			Description:       "Capture last logs from the crashing containers",
			Params:            models.ActionParams{Namespace: ns, Selector: selector, Reason: "CrashLoopBackOff"},
			Confidence:        0.90,
			Risk:              models.RiskLow,
			EstimatedDuration: 15 * time.Second,
			Prerequisites:     []string{"identify_crashing_pods"},
			RequiresFindings:  true,
		},
		{
			Name:              "restart_crashing_pods",
			Kind:              models.ActionRestartPods,
			Description:       "Delete crashing pods so their controllers reschedule them",
			Params:            models.ActionParams{Namespace: ns, Selector: selector, Reason: "CrashLoopBackOff"},
			Confidence:        0.75,
			Risk:              models.RiskMedium,
			EstimatedDuration: 20 * time.Second,
			Prerequisites:     []string{"identify_crashing_pods"},
			RequiresFindings:  true,
		},
	}
}

func imagePullStrategy(sig models.IncidentSignal, rctx RuntimeContext) []models.ResolutionAction {
	ns, deployment, selector := target(sig, rctx)
	actions := []models.ResolutionAction{
		{
			Name:              "identify_pull_failures",
			Kind:              models.ActionIdentifyPods,
			Description:       "List pods failing to pull their image",
			Params:            models.ActionParams{Namespace: ns, Selector: selector, Reason: "ImagePullBackOff"},
			Confidence:        0.95,
			Risk:              models.RiskLow,
			EstimatedDuration: 10 * time.Second,
		},
	}
	if image := sig.Source["image"]; image != "" && deployment != "" {
		actions = append(actions, models.ResolutionAction{
			Name:              "update_workload_image",
			Kind:              models.ActionUpdateImage,
			Description:       "Point the deployment at the corrected image reference",
			Params:            models.ActionParams{Namespace: ns, Deployment: deployment, Image: image},
			Confidence:        0.70,
			Risk:              models.RiskHigh,
			EstimatedDuration: 30 * time.Second,
			RollbackPossible:  true,
			Prerequisites:     []string{"identify_pull_failures"},
			RequiresFindings:  true,
		})
	} else if deployment != "" {
		actions = append(actions, models.ResolutionAction{
			Name:              "rollback_bad_release",
			Kind:              models.ActionRollbackDeployment,
			Description:       "Roll the deployment back to its previous revision",
			Params:            models.ActionParams{Namespace: ns, Deployment: deployment},
			Confidence:        0.75,
			Risk:              models.RiskMedium,
			EstimatedDuration: 45 * time.Second,
			Prerequisites:     []string{"identify_pull_failures"},
			RequiresFindings:  true,
		})
	}
	return actions
}

func cpuThrottleStrategy(sig models.IncidentSignal, rctx RuntimeContext) []models.ResolutionAction {
	ns, deployment, selector := target(sig, rctx)
	return []models.ResolutionAction{
		{
			Name:              "identify_throttled_pods",
			Kind:              models.ActionIdentifyPods,
			Description:       "List pods hitting their CPU quota",
			Params:            models.ActionParams{Namespace: ns, Selector: selector, Reason: "CPUThrottled"},
			Confidence:        0.90,
			Risk:              models.RiskLow,
			EstimatedDuration: 10 * time.Second,
		},
		{
			Name:              "raise_cpu_limits",
			Kind:              models.ActionAdjustCPULimits,
			Description:       "Raise CPU limits for the throttled workload",
			Params:            models.ActionParams{Namespace: ns, Deployment: deployment, Selector: selector, CPULimit: rctx.CPULimit},
			Confidence:        0.75,
			Risk:              models.RiskMedium,
			EstimatedDuration: 30 * time.Second,
			RollbackPossible:  true,
			Prerequisites:     []string{"identify_throttled_pods"},
			RequiresFindings:  true,
		},
	}
}

func serviceDownStrategy(sig models.IncidentSignal, rctx RuntimeContext) []models.ResolutionAction {
	ns, deployment, _ := target(sig, rctx)
	endpoint := firstNonEmpty(sig.Source["endpoint"], sig.Source["url"])

	actions := make([]models.ResolutionAction, 0, 2)
	if endpoint != "" {
		actions = append(actions, models.ResolutionAction{
			Name:              "probe_service_endpoint",
			Kind:              models.ActionCheckEndpoint,
			Description:       "Probe the service endpoint for availability",
			Params:            models.ActionParams{Endpoint: endpoint},
			Confidence:        0.90,
			Risk:              models.RiskLow,
			EstimatedDuration: 5 * time.Second,
		})
	}
	if deployment != "" {
		restart := models.ResolutionAction{
			Name:              "restart_unhealthy_deployment",
			Kind:              models.ActionRestartDeployment,
			Description:       "Rolling-restart the deployment behind the service",
			Params:            models.ActionParams{Namespace: ns, Deployment: deployment},
			Confidence:        0.70,
			Risk:              models.RiskMedium,
			EstimatedDuration: 45 * time.Second,
		}
		if endpoint != "" {
			restart.Prerequisites = []string{"probe_service_endpoint"}
			restart.RequiresFindings = true
		}
		actions = append(actions, restart)
	}
	if len(actions) == 0 {
		// Nothing to go on beyond the alert text. Fall back to the generic
		// error-pod sweep instead of returning an empty plan.
		return genericStrategy(sig, rctx)
	}
	return actions
}

func deploymentFailedStrategy(sig models.IncidentSignal, rctx RuntimeContext) []models.ResolutionAction {
	ns, deployment, selector := target(sig, rctx)
	actions := []models.ResolutionAction{
		{
			Name:              "identify_failed_pods",
			Kind:              models.ActionIdentifyPods,
			Description:       "List pods from the failed rollout",
			Params:            models.ActionParams{Namespace: ns, Selector: selector, Reason: "Error"},
			Confidence:        0.85,
			Risk:              models.RiskLow,
			EstimatedDuration: 10 * time.Second,
		},
	}
	if deployment != "" {
		actions = append(actions, models.ResolutionAction{
			Name:              "rollback_failed_release",
			Kind:              models.ActionRollbackDeployment,
			Description:       "Roll the deployment back to its previous revision",
			Params:            models.ActionParams{Namespace: ns, Deployment: deployment},
			Confidence:        0.85,
			Risk:              models.RiskMedium,
			EstimatedDuration: 45 * time.Second,
			Prerequisites:     []string{"identify_failed_pods"},
			RequiresFindings:  true,
		})
	}
	return actions
}

func nodeIssueStrategy(sig models.IncidentSignal, rctx RuntimeContext) []models.ResolutionAction {
	node := sig.Source["node"]
	actions := []models.ResolutionAction{
		{
			Name:              "identify_unhealthy_nodes",
			Kind:              models.ActionIdentifyNodes,
			Description:       "List nodes reporting NotReady or pressure conditions",
			Params:            models.ActionParams{Reason: "NotReady", Node: node},
			Confidence:        0.90,
			Risk:              models.RiskLow,
			EstimatedDuration: 10 * time.Second,
		},
	}
	if node != "" {
		actions = append(actions, models.ResolutionAction{
			Name:              "cordon_unhealthy_node",
			Kind:              models.ActionCordonNode,
			Description:       "Cordon the unhealthy node to stop new scheduling",
			Params:            models.ActionParams{Node: node},
			Confidence:        0.70,
			Risk:              models.RiskMedium,
			EstimatedDuration: 10 * time.Second,
			RollbackPossible:  true,
			Prerequisites:     []string{"identify_unhealthy_nodes"},
			RequiresFindings:  true,
		})
	}
	return actions
}

// genericStrategy is the fallback for signals nothing else claimed. It must
// stay non-empty: the pipeline relies on every category producing a plan.
func genericStrategy(sig models.IncidentSignal, rctx RuntimeContext) []models.ResolutionAction {
	ns, _, selector := target(sig, rctx)
	return []models.ResolutionAction{
		{
			Name:              "identify_error_pods",
			Kind:              models.ActionIdentifyPods,
			Description:       "List pods in an error state",
			Params:            models.ActionParams{Namespace: ns, Selector: selector, Reason: "Error"},
			Confidence:        0.90,
			Risk:              models.RiskLow,
			EstimatedDuration: 10 * time.Second,
		},
		{
			Name:              "restart_error_pods",
			Kind:              models.ActionRestartPods,
			Description:       "Delete error pods so their controllers reschedule them",
			Params:            models.ActionParams{Namespace: ns, Selector: selector, Reason: "Error"},
			Confidence:        0.60,
			Risk:              models.RiskMedium,
			EstimatedDuration: 20 * time.Second,
			Prerequisites:     []string{"identify_error_pods"},
			RequiresFindings:  true,
		},
	}
}

func target(sig models.IncidentSignal, rctx RuntimeContext) (namespace, deployment, selector string) {
	namespace = firstNonEmpty(sig.Source["namespace"], rctx.Namespace)
	deployment = firstNonEmpty(sig.Source["deployment"], sig.Source["service"], sig.Source["app"])
	selector = sig.Source["selector"]
	if selector == "" && deployment != "" {
		selector = "app=" + deployment
	}
	return namespace, deployment, selector
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
