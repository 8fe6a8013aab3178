package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
)

// ClusterQuerier is the condition-query slice of the cluster agent used by
// verification.
type ClusterQuerier interface {
	Query(ctx context.Context, cond models.ConditionQuery) (models.QueryResult, error)
}

// Verifier performs the single post-run condition check. A run is verified
// when the condition that triggered it no longer matches anything.
type Verifier struct {
	querier ClusterQuerier
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewVerifier builds a Verifier. A nil querier makes every check inconclusive,
// which is the honest answer when the cluster cannot be observed.
func NewVerifier(querier ClusterQuerier, timeout time.Duration, logger *slog.Logger) *Verifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{querier: querier, timeout: timeout, logger: logger, now: time.Now}
}

// Check queries the condition once and grades the result. Query errors yield
// an inconclusive outcome, never a verified one. The check runs inside its own
// timeout and survives cancellation of the surrounding run.
func (v *Verifier) Check(ctx context.Context, cond models.ConditionQuery) models.VerificationOutcome {
	outcome := models.VerificationOutcome{
		Condition: cond,
		CheckedAt: v.now().UTC(),
	}

	if v.querier == nil {
		outcome.Status = models.VerificationInconclusive
		outcome.Evidence = "no cluster querier configured"
		return outcome
	}

	queryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
	defer cancel()

	res, err := v.querier.Query(queryCtx, cond)
	if err != nil {
		v.logger.Warn("verification query failed",
			slog.String("check", string(cond.Check)), slog.Any("error", err))
		outcome.Status = models.VerificationInconclusive
		outcome.Evidence = err.Error()
		return outcome
	}

	outcome.Matches = res.Matches
	outcome.Evidence = res.Detail
	if len(res.Matches) == 0 {
		outcome.Status = models.VerificationVerified
	} else {
		outcome.Status = models.VerificationFailed
	}
	return outcome
}

// ConditionFor maps an incident category onto the cluster condition whose
// absence means the incident is fixed. Namespace and workload hints come from
// the signal source; defaultNamespace fills the gap.
func ConditionFor(category models.IncidentCategory, sig models.IncidentSignal, defaultNamespace string) models.ConditionQuery {
	namespace := sig.Source["namespace"]
	if namespace == "" {
		namespace = defaultNamespace
	}
	deployment := sig.Source["deployment"]
	if deployment == "" {
		deployment = sig.Source["service"]
	}
	if deployment == "" {
		deployment = sig.Source["app"]
	}

	switch category {
	case models.CategoryOOMKill:
		return models.ConditionQuery{
			Check:       models.CheckPodsInState,
			Namespace:   namespace,
			Reason:      "OOMKilled",
			Description: "no pods remain OOM killed",
		}
	case models.CategoryPodCrash:
		return models.ConditionQuery{
			Check:       models.CheckPodsInState,
			Namespace:   namespace,
			Reason:      "CrashLoopBackOff",
			Description: "no pods remain crash looping",
		}
	case models.CategoryImagePullError:
		return models.ConditionQuery{
			Check:       models.CheckPodsInState,
			Namespace:   namespace,
			Reason:      "ImagePullBackOff",
			Description: "no pods remain failing image pulls",
		}
	case models.CategoryCPUThrottle:
		return models.ConditionQuery{
			Check:       models.CheckPodsInState,
			Namespace:   namespace,
			Reason:      "CPUThrottled",
			Description: "no pods remain CPU throttled",
		}
	case models.CategoryServiceDown:
		if endpoint := sig.Source["endpoint"]; endpoint != "" {
			return models.ConditionQuery{
				Check:       models.CheckEndpointDown,
				Endpoint:    endpoint,
				Description: fmt.Sprintf("endpoint %s answers again", endpoint),
			}
		}
		if deployment != "" {
			return models.ConditionQuery{
				Check:       models.CheckDeploymentUnavailable,
				Namespace:   namespace,
				Deployment:  deployment,
				Description: fmt.Sprintf("deployment %s is available again", deployment),
			}
		}
		return models.ConditionQuery{
			Check:       models.CheckPodsInState,
			Namespace:   namespace,
			Reason:      "Error",
			Description: "no pods remain in error",
		}
	case models.CategoryDeploymentFailed:
		return models.ConditionQuery{
			Check:       models.CheckDeploymentUnavailable,
			Namespace:   namespace,
			Deployment:  deployment,
			Description: "the deployment reports full availability",
		}
	case models.CategoryNodeIssue:
		return models.ConditionQuery{
			Check:       models.CheckNodesNotReady,
			Description: "all nodes report ready",
		}
	default:
		return models.ConditionQuery{
			Check:       models.CheckPodsInState,
			Namespace:   namespace,
			Reason:      "Error",
			Description: "no pods remain in error",
		}
	}
}
