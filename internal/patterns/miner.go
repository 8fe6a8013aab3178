// Package patterns mines aggregate remediation statistics from journal
// history: how often each incident category shows up, how often runs resolve
// it and which actions carry the load.
package patterns

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
)

// History is the slice of the journal the miner reads.
type History interface {
	List(ctx context.Context, req models.ListReportsRequest) ([]models.ExecutionReport, error)
}

// Miner aggregates per-category outcomes from stored execution reports.
type Miner struct {
	history History
	logger  *slog.Logger
}

// NewMiner constructs a Miner over the given history.
func NewMiner(logger *slog.Logger, history History) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{history: history, logger: logger}
}

// Mine aggregates recent reports into per-category statistics, busiest
// category first.
func (m *Miner) Mine(ctx context.Context, since time.Time, limit int) ([]models.CategoryStats, error) {
	if limit <= 0 {
		limit = 500
	}
	reports, err := m.history.List(ctx, models.ListReportsRequest{Since: since, Limit: limit})
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}

	aggregates := make(map[models.IncidentCategory]*categoryAggregate)
	for _, report := range reports {
		agg := ensureAggregate(aggregates, report.Category)
		agg.runs++
		if report.State == models.StateResolved {
			agg.resolved++
		}
		if report.StartedAt.After(agg.lastSeen) {
			agg.lastSeen = report.StartedAt
		}
		for _, entry := range report.ExecutionLog {
			if entry.Outcome == models.OutcomeSkipped {
				continue
			}
			agg.actionCounts[entry.Action]++
		}
	}

	stats := make([]models.CategoryStats, 0, len(aggregates))
	for category, agg := range aggregates {
		stats = append(stats, models.CategoryStats{
			Category:    category,
			Runs:        agg.runs,
			Resolved:    agg.resolved,
			SuccessRate: float64(agg.resolved) / float64(agg.runs),
			TopActions:  agg.topActions(3),
			LastSeen:    agg.lastSeen,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Runs != stats[j].Runs {
			return stats[i].Runs > stats[j].Runs
		}
		return stats[i].Category < stats[j].Category
	})

	m.logger.Debug("mined category stats",
		slog.Int("reports", len(reports)), slog.Int("categories", len(stats)))
	return stats, nil
}

type categoryAggregate struct {
	runs         int
	resolved     int
	lastSeen     time.Time
	actionCounts map[string]int
}

func ensureAggregate(m map[models.IncidentCategory]*categoryAggregate, category models.IncidentCategory) *categoryAggregate {
	if category == "" {
		category = models.CategoryGeneric
	}
	agg, ok := m[category]
	if !ok {
		agg = &categoryAggregate{actionCounts: make(map[string]int)}
		m[category] = agg
	}
	return agg
}

func (agg *categoryAggregate) topActions(limit int) []string {
	actions := make([]string, 0, len(agg.actionCounts))
	for name := range agg.actionCounts {
		actions = append(actions, name)
	}
	sort.Slice(actions, func(i, j int) bool {
		if agg.actionCounts[actions[i]] != agg.actionCounts[actions[j]] {
			return agg.actionCounts[actions[i]] > agg.actionCounts[actions[j]]
		}
		return actions[i] < actions[j]
	})
	if len(actions) > limit {
		actions = actions[:limit]
	}
	return actions
}
