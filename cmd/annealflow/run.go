package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantumflow/annealflow/internal/agent"
	"github.com/quantumflow/annealflow/internal/anneal"
	"github.com/quantumflow/annealflow/internal/models"
)

func runCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run <agent> <task...>",
		Short: "Run one task on an agent",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.orchestrator.FindAgent(args[0])
			if err != nil {
				return err
			}
			task := strings.Join(args[1:], " ")

			printBanner()
			fmt.Printf("🤖 %s (%s) | Max iterations: %d\n", p.Name, p.Category, p.MaxIterations)
			fmt.Printf("📋 %s\n\n", task)

			var obs anneal.Observer
			if !quiet {
				obs = consoleObserver()
			}

			result, err := a.orchestrator.Execute(cmd.Context(), p.ID, task, obs)
			if result == nil {
				return err
			}
			printResult(result)
			if err != nil {
				fmt.Printf("⚠️  %v\n", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print the final result")
	return cmd
}

// consoleObserver prints state changes and logs as the run progresses
func consoleObserver() anneal.Observer {
	return anneal.ObserverFuncs{
		State: func(s models.AnnealingState) {
			if !s.Running {
				return
			}
			fmt.Printf("\r🌡  T=%6.2f | iter %3d | energy %.3f | best %.3f | accepted %d ",
				s.Temperature, s.Iterations, s.Energy, s.BestEnergy, s.Acceptances)
		},
		Log: func(message string, kind models.LogKind) {
			switch kind {
			case models.LogImprovement:
				fmt.Printf("\n✨ %s\n", message)
			case models.LogError:
				fmt.Printf("\n❌ %s\n", message)
			default:
				fmt.Printf("\n• %s\n", message)
			}
		},
	}
}

func printResult(r *models.TaskResult) {
	status := "✅ Success"
	switch {
	case r.Cancelled:
		status = "⏹  Cancelled"
	case !r.Success:
		status = "⚠️  Below threshold"
	}

	fmt.Println("\n\n═══════════════════════════════════════════════════════════")
	fmt.Printf("%s | quality %.2f | %d iterations | %.2fs\n",
		status, r.Quality, r.Iterations, r.Duration.Seconds())
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println(r.Result)
	if len(r.Improvements) > 0 {
		fmt.Println("\nImprovements:")
		for _, imp := range r.Improvements {
			fmt.Printf("  • %s\n", imp)
		}
	}
	fmt.Println()
}

func batchCmd() *cobra.Command {
	var (
		workers     int
		serveMetric bool
	)

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Run tasks from a file through the worker pool",
		Long: `Each non-empty line of the file is "<agent> <task>". Lines starting
with # are ignored. Tasks for different agents run in parallel; tasks for
the same agent run one at a time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			jobs, err := readBatch(args[0], a.orchestrator)
			if err != nil {
				return err
			}

			if serveMetric || cfg.Metrics.Enabled {
				srv := startMetricsServer(a)
				defer srv.Shutdown(context.Background())
			}

			if workers <= 0 {
				workers = cfg.Pool.Workers
			}
			pool := agent.NewPool(a.orchestrator, &agent.PoolConfig{
				Workers:   workers,
				QueueSize: max(cfg.Pool.QueueSize, len(jobs)),
				Metrics:   a.metrics,
				Logger:    logger,
			})

			var (
				wg sync.WaitGroup
				mu sync.Mutex
			)
			for _, job := range jobs {
				job.Context = ctx
				wg.Add(1)
				job.Callback = func(r *agent.JobResult) {
					defer wg.Done()
					mu.Lock()
					defer mu.Unlock()
					printJobResult(job.Task, r)
				}
				if err := pool.Submit(job); err != nil {
					wg.Done()
					fmt.Printf("❌ %s: %v\n", truncate(job.Task, 50), err)
				}
			}
			wg.Wait()

			if err := pool.Shutdown(cfg.Pool.ShutdownTimeout); err != nil {
				logger.Warn("pool shutdown", "error", err)
			}

			stats := pool.Stats()
			fmt.Printf("\n⏱ %d jobs | %d ok | %d failed | avg %.2fs\n",
				stats.TotalJobs, stats.CompletedOK, stats.CompletedError, stats.AverageLatency.Seconds())
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "worker count (default from config)")
	cmd.Flags().BoolVar(&serveMetric, "metrics", false, "serve Prometheus metrics while the batch runs")
	return cmd
}

// readBatch parses "<agent> <task>" lines and resolves agent references
func readBatch(path string, orch *agent.Orchestrator) ([]*agent.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var jobs []*agent.Job
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		ref, task, ok := strings.Cut(text, " ")
		if !ok || strings.TrimSpace(task) == "" {
			return nil, fmt.Errorf("%s:%d: expected \"<agent> <task>\"", path, line)
		}
		p, err := orch.FindAgent(ref)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		jobs = append(jobs, &agent.Job{AgentID: p.ID, Task: strings.TrimSpace(task)})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, errors.New("no tasks in batch file")
	}
	return jobs, nil
}

func printJobResult(task string, r *agent.JobResult) {
	if r.Result == nil {
		fmt.Printf("❌ %s: %v\n", truncate(task, 50), r.Err)
		return
	}
	mark := "✓"
	if !r.Result.Success {
		mark = "✗"
	}
	fmt.Printf("%s %-50s quality %.2f | %d iter | %.2fs\n",
		mark, truncate(task, 50), r.Result.Quality, r.Result.Iterations, r.Latency.Seconds())
	if r.Err != nil {
		fmt.Printf("   ⚠️  %v\n", r.Err)
	}
}

func startMetricsServer(a *app) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics server listening", "addr", cfg.Metrics.Addr)
	return srv
}
