package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quantumflow/annealflow/internal/agent"
	"github.com/quantumflow/annealflow/internal/anneal"
	"github.com/quantumflow/annealflow/internal/config"
	"github.com/quantumflow/annealflow/internal/inference"
	"github.com/quantumflow/annealflow/internal/learning"
	"github.com/quantumflow/annealflow/internal/logging"
	"github.com/quantumflow/annealflow/internal/metrics"
	"github.com/quantumflow/annealflow/internal/store"
)

const version = "0.1.0-alpha"

var (
	configPath string
	logLevel   string
	cfg        *config.Config
	logger     *slog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "annealflow",
		Short: "AnnealFlow - self-annealing task agents",
		Long: `AnnealFlow runs specialized agents that refine their answers with
simulated annealing and learn which approaches work over time.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			logger = logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			slog.SetDefault(logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		agentCmd(),
		runCmd(),
		batchCmd(),
		statsCmd(),
		modelsCmd(),
		configCmd(),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired components a command works with
type app struct {
	store        store.AgentStore
	metrics      *metrics.Metrics
	orchestrator *agent.Orchestrator
}

// openApp opens the store and loads every saved agent
func openApp(ctx context.Context) (*app, error) {
	s, err := store.Open(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New(nil)

	engine := anneal.NewEngine(newGenerator(),
		anneal.WithConfig(cfg.Engine),
		anneal.WithLearner(learning.NewStrategyLearner(cfg.Learning, logger)),
		anneal.WithRecorder(m),
		anneal.WithLogger(logger),
	)

	orch := agent.NewOrchestrator(engine, learning.NewTracker(cfg.Tracker), s,
		agent.WithDefaults(agent.Defaults{
			TemperatureScale: cfg.Defaults.TemperatureScale,
			CreativityBias:   cfg.Defaults.CreativityBias,
			MaxIterations:    cfg.Defaults.MaxIterations,
			LearningRate:     cfg.Defaults.LearningRate,
		}),
		agent.WithMetrics(m),
		agent.WithLogger(logger),
	)

	if err := orch.Load(ctx); err != nil {
		s.Close()
		return nil, err
	}

	return &app{store: s, metrics: m, orchestrator: orch}, nil
}

func (a *app) Close() {
	if err := a.orchestrator.Close(); err != nil {
		logger.Warn("close failed", "error", err)
	}
}

func newGenerator() anneal.CandidateGenerator {
	if cfg.Generator.Kind == config.GeneratorTemplate {
		return anneal.TemplateGenerator{}
	}
	client := inference.NewClient(&cfg.Inference)
	return inference.NewGenerator(client, cfg.Sampling, logger)
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("AnnealFlow %s\n", version)
		},
	}
}

func printBanner() {
	fmt.Printf(`
╔═════════════════════════════════════════════════════════╗
║             AnnealFlow Task Optimizer %s        ║
║          Simulated annealing with learned strategy      ║
╚═════════════════════════════════════════════════════════╝

`, version)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
