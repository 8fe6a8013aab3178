package strategy

import "github.com/SkySingh04/DreamOps-sub000/internal/models"

// Inverse returns the action that undoes a rollback-possible action. The
// second return is false when the action carries no inverse.
func Inverse(action models.ResolutionAction) (models.ResolutionAction, bool) {
	if !action.RollbackPossible {
		return models.ResolutionAction{}, false
	}

	inverse := models.ResolutionAction{
		Confidence:        0.90,
		Risk:              action.Risk,
		EstimatedDuration: action.EstimatedDuration,
	}

	switch action.Kind {
	case models.ActionIncreaseMemoryLimits:
		inverse.Name = "restore_memory_limits"
		inverse.Kind = models.ActionRestoreMemoryLimits
		inverse.Description = "Restore the previous memory limits"
		// Leaving MemoryLimit empty asks the provider for the recorded value.
		inverse.Params = models.ActionParams{
			Namespace:  action.Params.Namespace,
			Deployment: action.Params.Deployment,
			Selector:   action.Params.Selector,
		}
	case models.ActionAdjustCPULimits:
		inverse.Name = "restore_cpu_limits"
		inverse.Kind = models.ActionRestoreCPULimits
		inverse.Description = "Restore the previous CPU limits"
		inverse.Params = models.ActionParams{
			Namespace:  action.Params.Namespace,
			Deployment: action.Params.Deployment,
			Selector:   action.Params.Selector,
		}
	case models.ActionCordonNode, models.ActionDrainNode:
		inverse.Name = "uncordon_node"
		inverse.Kind = models.ActionUncordonNode
		inverse.Description = "Mark the node schedulable again"
		inverse.Params = models.ActionParams{Node: action.Params.Node}
	case models.ActionUpdateImage:
		inverse.Name = "rollback_image_change"
		inverse.Kind = models.ActionRollbackDeployment
		inverse.Description = "Roll the deployment back to the prior revision"
		inverse.Params = models.ActionParams{
			Namespace:  action.Params.Namespace,
			Deployment: action.Params.Deployment,
		}
	default:
		return models.ResolutionAction{}, false
	}

	return inverse, true
}
