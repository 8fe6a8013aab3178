package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SkySingh04/DreamOps-sub000/internal/alerting"
	"github.com/SkySingh04/DreamOps-sub000/internal/approval"
	"github.com/SkySingh04/DreamOps-sub000/internal/clusterops"
	"github.com/SkySingh04/DreamOps-sub000/internal/config"
	"github.com/SkySingh04/DreamOps-sub000/internal/engine"
	"github.com/SkySingh04/DreamOps-sub000/internal/executor"
	"github.com/SkySingh04/DreamOps-sub000/internal/intake"
	"github.com/SkySingh04/DreamOps-sub000/internal/journal"
	"github.com/SkySingh04/DreamOps-sub000/internal/metrics"
	"github.com/SkySingh04/DreamOps-sub000/internal/models"
	"github.com/SkySingh04/DreamOps-sub000/internal/patterns"
	"github.com/SkySingh04/DreamOps-sub000/internal/policy"
	"github.com/SkySingh04/DreamOps-sub000/internal/services"
	"github.com/SkySingh04/DreamOps-sub000/internal/strategy"
	"github.com/SkySingh04/DreamOps-sub000/internal/utils"
)

var rootCmd = &cobra.Command{
	Use:   "oncall-engine",
	Short: "AI-assisted incident remediation engine",
	Long: `oncall-engine turns monitoring alerts into remediation runs: classify the
incident, plan category-specific actions, gate them by autonomy mode, execute
the survivors against a remediation agent and verify the cluster afterwards.
Every run produces a complete execution report.`,
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("DREAMOPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(approveCmd())
	rootCmd.AddCommand(denyCmd())
}

func submitCmd() *cobra.Command {
	var mode string
	var correlation string
	cmd := &cobra.Command{
		Use:   "submit [alert.json]",
		Short: "Run one alert through the engine",
		Long: `Reads an alert JSON document from the given file (or stdin when omitted),
runs it through classification, planning, gating, execution and verification,
and prints the resulting execution report.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alert, err := readAlert(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, eng *services.Engine) error {
				report, err := eng.Submit(ctx, models.SubmitRequest{
					Alert:          alert,
					Mode:           models.AutonomyMode(mode),
					CorrelationKey: correlation,
				})
				if err != nil {
					return err
				}
				return printReport(report)
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "autonomy mode for this run (yolo, approval, plan)")
	cmd.Flags().StringVar(&correlation, "correlation", "", "correlation key grouping related runs")
	return cmd
}

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [alert.json]",
		Short: "Preview the remediation plan without touching the cluster",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alert, err := readAlert(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, eng *services.Engine) error {
				report, err := eng.Submit(ctx, models.SubmitRequest{Alert: alert, Mode: models.ModePlan})
				if err != nil {
					return err
				}
				return printReport(report)
			})
		},
	}
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the spool directory and remediate incoming alerts",
		Long: `Runs the engine as a daemon: watches the configured spool directory for
alert JSON files, processes them concurrently and archives each file once its
run finishes. Exposes Prometheus metrics while running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := boot()
			if err != nil {
				return err
			}
			if cfg.Intake.SpoolDir == "" {
				return errors.New("spool directory not configured (set intake.spoolDir or DREAMOPS_SPOOL_DIR)")
			}

			eng, cleanup, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			watcher, err := intake.NewWatcher(logger, eng, intake.Options{
				SpoolDir:       cfg.Intake.SpoolDir,
				ArchiveDir:     cfg.Intake.ArchiveDir,
				RescanInterval: cfg.Intake.RescanInterval,
				MaxConcurrent:  cfg.Intake.MaxConcurrent,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var metricsServer *http.Server
			if cfg.Metrics.Address != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metricsServer = &http.Server{
					Addr:         cfg.Metrics.Address,
					Handler:      mux,
					ReadTimeout:  5 * time.Second,
					WriteTimeout: 15 * time.Second,
				}
				go func() {
					logger.Info("metrics server listening", slog.String("address", cfg.Metrics.Address))
					if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server exited", slog.Any("error", err))
						stop()
					}
				}()
			}

			runErr := watcher.Run(ctx)
			if errors.Is(runErr, context.Canceled) {
				logger.Info("shutdown signal received")
				runErr = nil
			}

			if metricsServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Warn("metrics server shutdown", slog.Any("error", err))
				}
				cancel()
			}

			logger.Info("oncall-engine stopped")
			return runErr
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	report := &cobra.Command{Use: "report", Short: "Inspect stored execution reports"}
	report.AddCommand(reportListCmd())
	report.AddCommand(reportShowCmd())
	return report
}

func reportListCmd() *cobra.Command {
	var category, state, correlation, since string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.ListReportsRequest{
				Category:       models.IncidentCategory(category),
				State:          models.RunState(state),
				CorrelationKey: correlation,
				Limit:          limit,
			}
			if since != "" {
				ts, err := parseSince(since)
				if err != nil {
					return err
				}
				req.Since = ts
			}
			return withJournal(cmd.Context(), func(ctx context.Context, store *journal.Store) error {
				reports, err := store.List(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reports)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Run", "Started", "Category", "Mode", "State", "Actions", "Verification"})
				for _, r := range reports {
					verification := ""
					if r.Verification != nil {
						verification = string(r.Verification.Status)
					}
					tw.AppendRow(table.Row{
						r.RunID,
						r.StartedAt.Local().Format(time.RFC3339),
						r.Category,
						r.Mode,
						r.State,
						fmt.Sprintf("%d/%d", r.ExecutedActions(), len(r.ExecutionLog)),
						verification,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "incident category filter")
	cmd.Flags().StringVar(&state, "state", "", "run state filter")
	cmd.Flags().StringVar(&correlation, "correlation", "", "correlation key filter")
	cmd.Flags().StringVar(&since, "since", "", "only runs after this time (RFC3339 or duration like 24h)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}

func reportShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one execution report in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), func(ctx context.Context, store *journal.Store) error {
				report, err := store.Get(ctx, args[0])
				if err != nil {
					if errors.Is(err, journal.ErrNotFound) {
						return fmt.Errorf("no report for run %s", args[0])
					}
					return err
				}
				return printReport(report)
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	var since string
	var limit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate journal history per incident category",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sinceTS time.Time
			if since != "" {
				ts, err := parseSince(since)
				if err != nil {
					return err
				}
				sinceTS = ts
			}
			return withJournal(cmd.Context(), func(ctx context.Context, store *journal.Store) error {
				miner := patterns.NewMiner(nil, store)
				stats, err := miner.Mine(ctx, sinceTS, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Category", "Runs", "Resolved", "Success", "Top actions", "Last seen"})
				for _, s := range stats {
					tw.AppendRow(table.Row{
						s.Category,
						s.Runs,
						s.Resolved,
						fmt.Sprintf("%.0f%%", s.SuccessRate*100),
						strings.Join(s.TopActions, ", "),
						s.LastSeen.Local().Format(time.RFC3339),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only runs after this time (RFC3339 or duration like 24h)")
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum reports to aggregate")
	return cmd
}

func approveCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "approve <run-id> <action>",
		Short: "Release an action held for approval",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolveApproval(cmd.Context(), args[0], args[1], approval.DecisionApproved, ttl)
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 10*time.Minute, "how long the verdict stays readable")
	return cmd
}

func denyCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "deny <run-id> <action>",
		Short: "Deny an action held for approval",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolveApproval(cmd.Context(), args[0], args[1], approval.DecisionDenied, ttl)
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 10*time.Minute, "how long the verdict stays readable")
	return cmd
}

func resolveApproval(ctx context.Context, runID, action string, decision approval.Decision, ttl time.Duration) error {
	cfg, logger, err := boot()
	if err != nil {
		return err
	}
	if cfg.Approval.Backend != "valkey" {
		return errors.New("approve/deny needs the valkey approval backend; the memory backend only works in-process")
	}
	store, err := approval.NewValkeyStore(valkeyConfig(cfg))
	if err != nil {
		return err
	}
	broker := approval.NewValkeyBroker(store, cfg.Approval.PollInterval, logger)
	if err := broker.Resolve(ctx, runID, action, decision, ttl); err != nil {
		return err
	}
	fmt.Printf("%s %s/%s\n", decision, runID, action)
	return nil
}

// --- assembly ---

func boot() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, nil, err
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// buildEngine assembles the full remediation stack from configuration. The
// returned cleanup closes the journal.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*services.Engine, func(), error) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, nil, fmt.Errorf("register metrics: %w", err)
	}

	classifier, err := engine.NewClassifier(cfg.Rules.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("load classification rules: %w", err)
	}

	agent := clusterops.NewAgentClient(
		cfg.Agent.BaseURL,
		cfg.Agent.ExecutePath,
		cfg.Agent.QueryPath,
		cfg.Agent.Token,
		cfg.Agent.Timeout,
	)

	broker, err := buildBroker(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	guard := executor.NewGuard(
		cfg.Guard.RatePerSecond,
		cfg.Guard.Burst,
		cfg.Guard.BreakerThreshold,
		cfg.Guard.BreakerCooldown,
	)
	exec := executor.NewExecutor(agent, guard, broker, cfg.Approval.Wait, cfg.Engine.ActionTimeout, logger)

	var lifecycle engine.IncidentLifecycle
	if cfg.Alerting.Enabled && cfg.Alerting.BaseURL != "" {
		lifecycle = alerting.NewBridgeClient(
			cfg.Alerting.BaseURL,
			cfg.Alerting.Token,
			cfg.Alerting.Actor,
			cfg.Alerting.Timeout,
			logger,
		)
	}

	cleanup := func() {}
	var sink engine.ReportSink
	if !cfg.Journal.Disabled {
		store, err := journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		sink = store
		cleanup = func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing journal", slog.Any("error", err))
			}
		}
	}

	pipeline := engine.NewPipeline(
		logger,
		classifier,
		strategy.DefaultLibrary(),
		policy.NewGate(),
		exec,
		agent,
		lifecycle,
		sink,
		engine.Settings{
			Runtime: strategy.RuntimeContext{
				Namespace:   cfg.Strategy.Namespace,
				MemoryLimit: cfg.Strategy.MemoryLimit,
				CPULimit:    cfg.Strategy.CPULimit,
			},
			RunTimeout:          cfg.Engine.RunTimeout,
			VerificationDelay:   cfg.Engine.VerificationDelay,
			VerificationTimeout: cfg.Engine.VerificationTimeout,
			EscalateUnresolved:  cfg.Engine.EscalateUnresolved,
		},
	)

	eng := services.NewEngine(logger, pipeline, models.AutonomyMode(cfg.Engine.DefaultMode))
	return eng, cleanup, nil
}

func buildBroker(cfg *config.Config, logger *slog.Logger) (approval.Broker, error) {
	switch cfg.Approval.Backend {
	case "", "memory":
		return approval.NewMemoryBroker(), nil
	case "valkey":
		store, err := approval.NewValkeyStore(valkeyConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("connect approval store: %w", err)
		}
		return approval.NewValkeyBroker(store, cfg.Approval.PollInterval, logger), nil
	default:
		return nil, fmt.Errorf("unknown approval backend %q", cfg.Approval.Backend)
	}
}

func valkeyConfig(cfg *config.Config) approval.ValkeyConfig {
	return approval.ValkeyConfig{
		Addr:         cfg.Approval.Addr,
		Username:     cfg.Approval.Username,
		Password:     cfg.Approval.Password,
		DB:           cfg.Approval.DB,
		KeyPrefix:    cfg.Approval.KeyPrefix,
		DialTimeout:  cfg.Approval.DialTimeout,
		ReadTimeout:  cfg.Approval.ReadTimeout,
		WriteTimeout: cfg.Approval.WriteTimeout,
		MaxRetries:   cfg.Approval.MaxRetries,
		TLS:          cfg.Approval.TLS,
	}
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *services.Engine) error) error {
	cfg, logger, err := boot()
	if err != nil {
		return err
	}
	eng, cleanup, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, eng)
}

func withJournal(ctx context.Context, fn func(context.Context, *journal.Store) error) error {
	cfg, logger, err := boot()
	if err != nil {
		return err
	}
	if cfg.Journal.Disabled {
		return errors.New("journal is disabled in configuration")
	}
	store, err := journal.Open(cfg.Journal.Path, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func readAlert(args []string) (models.RawAlert, error) {
	var data []byte
	var err error
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return models.RawAlert{}, fmt.Errorf("read alert: %w", err)
	}

	var alert models.RawAlert
	if err := json.Unmarshal(data, &alert); err != nil {
		return models.RawAlert{}, fmt.Errorf("decode alert: %w", err)
	}
	return alert, nil
}

func parseSince(value string) (time.Time, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return time.Now().Add(-d), nil
	}
	if ts, err := utils.ParseRFC3339(value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a duration or RFC3339 time", value)
}

func printReport(report models.ExecutionReport) error {
	if viper.GetBool("json") {
		return printJSON(report)
	}

	fmt.Printf("Run %s  [%s]\n", report.RunID, report.State)
	fmt.Printf("Signal: %s  %q  severity=%s  category=%s  mode=%s\n",
		report.Signal.ID, report.Signal.Title, report.Signal.Severity, report.Category, report.Mode)
	if report.CorrelationKey != "" {
		fmt.Printf("Correlation: %s\n", report.CorrelationKey)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Action", "Risk", "Decision", "Outcome", "Detail"})
	outcomes := make(map[string]models.ExecutionResult, len(report.ExecutionLog))
	for _, entry := range report.ExecutionLog {
		outcomes[entry.Action] = entry
	}
	for i, d := range report.Decisions {
		outcome, detail := "", d.Reason
		if entry, ok := outcomes[d.Action.Name]; ok {
			outcome = string(entry.Outcome)
			if entry.SkipReason != "" {
				outcome = fmt.Sprintf("%s (%s)", entry.Outcome, entry.SkipReason)
			}
			detail = firstLine(firstNonEmptyString(entry.Error, entry.Output, d.Reason))
		}
		tw.AppendRow(table.Row{i + 1, d.Action.Name, d.Action.Risk, d.Decision, outcome, detail})
	}
	tw.Render()

	if report.Verification != nil {
		fmt.Printf("Verification: %s  %s\n", report.Verification.Status, report.Verification.Condition.Description)
		if len(report.Verification.Matches) > 0 {
			fmt.Printf("  still matching: %s\n", strings.Join(report.Verification.Matches, ", "))
		}
	}
	if report.Lifecycle != "" {
		fmt.Printf("Lifecycle: %s", report.Lifecycle)
		if report.LifecycleNote != "" {
			fmt.Printf("  (%s)", report.LifecycleNote)
		}
		fmt.Println()
	}
	fmt.Printf("Duration: %s\n", report.TotalDuration.Round(time.Millisecond))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
