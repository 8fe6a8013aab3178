package signal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
	"github.com/SkySingh04/DreamOps-sub000/internal/utils"
)

// ErrInvalidSignal marks an alert too malformed to open a run for.
var ErrInvalidSignal = errors.New("invalid incident signal")

// Normalizer turns raw alerts into immutable incident signals.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a normalizer using the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize validates a raw alert and produces the canonical signal. The
// original title and description are preserved verbatim; only severity and
// timestamps are normalized. Missing optional fields are fine, a missing id
// or title is fatal.
func (n *Normalizer) Normalize(raw models.RawAlert) (models.IncidentSignal, error) {
	id := strings.TrimSpace(raw.ID)
	title := strings.TrimSpace(raw.Title)
	if id == "" {
		return models.IncidentSignal{}, fmt.Errorf("missing alert id: %w", ErrInvalidSignal)
	}
	if title == "" {
		return models.IncidentSignal{}, fmt.Errorf("missing alert title: %w", ErrInvalidSignal)
	}

	receivedAt := n.now().UTC()
	if raw.ReceivedAt != "" {
		if ts, err := utils.ParseRFC3339(raw.ReceivedAt); err == nil {
			receivedAt = ts.UTC()
		}
	}

	var source map[string]string
	if len(raw.Source) > 0 {
		source = make(map[string]string, len(raw.Source))
		for k, v := range raw.Source {
			source[k] = v
		}
	}

	return models.IncidentSignal{
		ID:          id,
		Title:       raw.Title,
		Description: raw.Description,
		Severity:    ParseSeverity(raw.Severity),
		Source:      source,
		ReceivedAt:  receivedAt,
	}, nil
}

// MatchText returns the lowercase text the classifier matches rules against.
func MatchText(sig models.IncidentSignal) string {
	return strings.ToLower(strings.TrimSpace(sig.Title + " " + sig.Description))
}

// ParseSeverity maps monitoring-tool severity labels onto the engine's
// levels. Unknown labels land on medium rather than failing the alert.
func ParseSeverity(value string) models.Severity {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "critical", "crit", "p1", "sev1", "sev-1", "fatal":
		return models.SeverityCritical
	case "high", "error", "p2", "sev2", "sev-2":
		return models.SeverityHigh
	case "medium", "warn", "warning", "p3", "sev3", "sev-3":
		return models.SeverityMedium
	case "low", "info", "minor", "p4", "p5", "sev4", "sev-4":
		return models.SeverityLow
	}
	return models.SeverityMedium
}
