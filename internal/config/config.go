package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the remediation engine.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Engine   EngineConfig   `yaml:"engine"`
	Strategy StrategyConfig `yaml:"strategy"`
	Rules    RulesConfig    `yaml:"rules"`
	Agent    AgentConfig    `yaml:"agent"`
	Alerting AlertingConfig `yaml:"alerting"`
	Approval ApprovalConfig `yaml:"approval"`
	Guard    GuardConfig    `yaml:"guard"`
	Journal  JournalConfig  `yaml:"journal"`
	Intake   IntakeConfig   `yaml:"intake"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the Prometheus endpoint exposed in watch mode.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// EngineConfig controls run orchestration.
type EngineConfig struct {
	DefaultMode         string        `yaml:"defaultMode"`
	RunTimeout          time.Duration `yaml:"runTimeout"`
	ActionTimeout       time.Duration `yaml:"actionTimeout"`
	VerificationTimeout time.Duration `yaml:"verificationTimeout"`
	VerificationDelay   time.Duration `yaml:"verificationDelay"`
	EscalateUnresolved  bool          `yaml:"escalateUnresolved"`
}

// StrategyConfig feeds the runtime context handed to resolution strategies.
type StrategyConfig struct {
	Namespace   string `yaml:"namespace"`
	MemoryLimit string `yaml:"memoryLimit"`
	CPULimit    string `yaml:"cpuLimit"`
}

// RulesConfig controls rule-pack loading for the classifier. An empty path
// keeps the embedded pack.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// AgentConfig configures access to the remediation agent endpoints.
type AgentConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	ExecutePath string        `yaml:"executePath"`
	QueryPath   string        `yaml:"queryPath"`
	Token       string        `yaml:"token"`
	Timeout     time.Duration `yaml:"timeout"`
}

// AlertingConfig configures the incident lifecycle bridge.
type AlertingConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"baseURL"`
	Token   string        `yaml:"token"`
	Actor   string        `yaml:"actor"`
	Timeout time.Duration `yaml:"timeout"`
}

// ApprovalConfig controls how pending approvals are granted. The valkey
// backend shares grants across engine replicas; memory keeps them in-process.
type ApprovalConfig struct {
	Backend      string        `yaml:"backend"`
	Wait         time.Duration `yaml:"wait"`
	PollInterval time.Duration `yaml:"pollInterval"`
	KeyPrefix    string        `yaml:"keyPrefix"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// GuardConfig bounds how hard the engine may lean on the cluster.
type GuardConfig struct {
	RatePerSecond    float64       `yaml:"ratePerSecond"`
	Burst            int           `yaml:"burst"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
}

// JournalConfig controls the execution report journal.
type JournalConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// IntakeConfig controls the spool-directory alert intake used by watch mode.
type IntakeConfig struct {
	SpoolDir       string        `yaml:"spoolDir"`
	ArchiveDir     string        `yaml:"archiveDir"`
	RescanInterval time.Duration `yaml:"rescanInterval"`
	MaxConcurrent  int           `yaml:"maxConcurrent"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("DREAMOPS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", JSON: false},
		Metrics: MetricsConfig{Address: ":2112"},
		Engine: EngineConfig{
			DefaultMode:         "approval",
			RunTimeout:          5 * time.Minute,
			ActionTimeout:       30 * time.Second,
			VerificationTimeout: 15 * time.Second,
			VerificationDelay:   5 * time.Second,
		},
		Strategy: StrategyConfig{
			Namespace:   "default",
			MemoryLimit: "1Gi",
			CPULimit:    "1",
		},
		Agent: AgentConfig{
			ExecutePath: "/api/v1/actions/execute",
			QueryPath:   "/api/v1/conditions/query",
			Timeout:     10 * time.Second,
		},
		Alerting: AlertingConfig{
			Actor:   "oncall-engine",
			Timeout: 5 * time.Second,
		},
		Approval: ApprovalConfig{
			Backend:      "memory",
			Wait:         2 * time.Minute,
			PollInterval: 2 * time.Second,
			KeyPrefix:    "dreamops:approval:",
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		Guard: GuardConfig{
			RatePerSecond:    2,
			Burst:            4,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Journal: JournalConfig{Path: "dreamops.db"},
		Intake: IntakeConfig{
			RescanInterval: 30 * time.Second,
			MaxConcurrent:  4,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DREAMOPS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DREAMOPS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("DREAMOPS_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
	if v := os.Getenv("DREAMOPS_DEFAULT_MODE"); v != "" {
		cfg.Engine.DefaultMode = v
	}
	if v := os.Getenv("DREAMOPS_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.RunTimeout = d
		}
	}
	if v := os.Getenv("DREAMOPS_ACTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.ActionTimeout = d
		}
	}
	if v := os.Getenv("DREAMOPS_VERIFICATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.VerificationTimeout = d
		}
	}
	if v := os.Getenv("DREAMOPS_VERIFICATION_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.VerificationDelay = d
		}
	}
	if v := os.Getenv("DREAMOPS_ESCALATE_UNRESOLVED"); v != "" {
		cfg.Engine.EscalateUnresolved = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("DREAMOPS_NAMESPACE"); v != "" {
		cfg.Strategy.Namespace = v
	}
	if v := os.Getenv("DREAMOPS_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("DREAMOPS_AGENT_URL"); v != "" {
		cfg.Agent.BaseURL = v
	}
	if v := os.Getenv("DREAMOPS_AGENT_TOKEN"); v != "" {
		cfg.Agent.Token = v
	}
	if v := os.Getenv("DREAMOPS_AGENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Agent.Timeout = d
		}
	}
	if v := os.Getenv("DREAMOPS_ALERTING_ENABLED"); v != "" {
		cfg.Alerting.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("DREAMOPS_ALERTING_URL"); v != "" {
		cfg.Alerting.BaseURL = v
	}
	if v := os.Getenv("DREAMOPS_ALERTING_TOKEN"); v != "" {
		cfg.Alerting.Token = v
	}
	if v := os.Getenv("DREAMOPS_ALERTING_ACTOR"); v != "" {
		cfg.Alerting.Actor = v
	}
	if v := os.Getenv("DREAMOPS_APPROVAL_BACKEND"); v != "" {
		cfg.Approval.Backend = v
	}
	if v := os.Getenv("DREAMOPS_APPROVAL_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Approval.Wait = d
		}
	}
	if v := os.Getenv("DREAMOPS_VALKEY_ADDR"); v != "" {
		cfg.Approval.Addr = v
	}
	if v := os.Getenv("DREAMOPS_VALKEY_USERNAME"); v != "" {
		cfg.Approval.Username = v
	}
	if v := os.Getenv("DREAMOPS_VALKEY_PASSWORD"); v != "" {
		cfg.Approval.Password = v
	}
	if v := os.Getenv("DREAMOPS_VALKEY_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Approval.DB = db
		}
	}
	if v := os.Getenv("DREAMOPS_VALKEY_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Approval.TLS = true
	}
	if v := os.Getenv("DREAMOPS_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("DREAMOPS_SPOOL_DIR"); v != "" {
		cfg.Intake.SpoolDir = v
	}
}
