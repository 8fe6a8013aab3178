package engine

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
	"github.com/SkySingh04/DreamOps-sub000/internal/signal"
)

//go:embed rules.yaml
var embeddedRules []byte

// Classifier maps incident signals onto the closed category set. Rules are
// evaluated in declaration order and the first match wins; a signal that
// matches nothing classifies as generic.
type Classifier struct {
	rules  []compiledRule
	logger *slog.Logger
}

// ClassifierRule is one ordered classification rule.
type ClassifierRule struct {
	ID       string   `yaml:"id"`
	Category string   `yaml:"category"`
	Contains []string `yaml:"contains"`
	Patterns []string `yaml:"patterns"`
}

type ruleConfigFile struct {
	Rules []ClassifierRule `yaml:"rules"`
}

type compiledRule struct {
	id       string
	category models.IncidentCategory
	contains []string
	patterns []*regexp.Regexp
}

// NewClassifier builds a classifier from the rule pack at path, or from the
// embedded default pack when path is empty or absent.
func NewClassifier(path string, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data := embeddedRules
	if path != "" {
		fileData, err := os.ReadFile(path)
		switch {
		case err == nil:
			data = fileData
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("rule pack not found, using embedded rules", slog.String("path", path))
		default:
			return nil, fmt.Errorf("read rule pack: %w", err)
		}
	}

	var cfg ruleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rule pack: %w", err)
	}
	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("rule pack contains no rules")
	}

	rules := make([]compiledRule, 0, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		compiled, err := compileRule(rule)
		if err != nil {
			return nil, err
		}
		rules = append(rules, compiled)
	}

	return &Classifier{rules: rules, logger: logger}, nil
}

// Classify returns exactly one category for the signal. Matching runs over
// the lowercase title and description; the stored signal is untouched.
func (c *Classifier) Classify(sig models.IncidentSignal) models.IncidentCategory {
	text := signal.MatchText(sig)
	for _, rule := range c.rules {
		if rule.matches(text) {
			c.logger.Debug("signal classified",
				slog.String("signal_id", sig.ID),
				slog.String("rule", rule.id),
				slog.String("category", string(rule.category)))
			return rule.category
		}
	}
	c.logger.Debug("signal classified",
		slog.String("signal_id", sig.ID),
		slog.String("rule", "fallback"),
		slog.String("category", string(models.CategoryGeneric)))
	return models.CategoryGeneric
}

func (r compiledRule) matches(text string) bool {
	for _, needle := range r.contains {
		if strings.Contains(text, needle) {
			return true
		}
	}
	for _, pattern := range r.patterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

func compileRule(rule ClassifierRule) (compiledRule, error) {
	category, err := parseCategory(rule.Category)
	if err != nil {
		return compiledRule{}, fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	if len(rule.Contains) == 0 && len(rule.Patterns) == 0 {
		return compiledRule{}, fmt.Errorf("rule %s has no triggers", rule.ID)
	}

	compiled := compiledRule{id: rule.ID, category: category}
	for _, needle := range rule.Contains {
		needle = strings.ToLower(strings.TrimSpace(needle))
		if needle != "" {
			compiled.contains = append(compiled.contains, needle)
		}
	}
	for _, raw := range rule.Patterns {
		re, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			return compiledRule{}, fmt.Errorf("rule %s pattern %q: %w", rule.ID, raw, err)
		}
		compiled.patterns = append(compiled.patterns, re)
	}
	return compiled, nil
}

func parseCategory(value string) (models.IncidentCategory, error) {
	category := models.IncidentCategory(strings.ToLower(strings.TrimSpace(value)))
	switch category {
	case models.CategoryPodCrash, models.CategoryImagePullError, models.CategoryOOMKill,
		models.CategoryCPUThrottle, models.CategoryServiceDown, models.CategoryDeploymentFailed,
		models.CategoryNodeIssue, models.CategoryGeneric:
		return category, nil
	}
	return "", fmt.Errorf("unknown category %q", value)
}
