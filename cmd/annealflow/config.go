package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quantumflow/annealflow/internal/config"
	"github.com/quantumflow/annealflow/internal/store"
)

// configCmd shows or initializes the configuration
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Current configuration:")
			fmt.Printf("  File:        %s\n", configPath)
			fmt.Println()

			fmt.Println("Engine:")
			fmt.Printf("  Initial temperature: %.1f\n", cfg.Engine.InitialTemperature)
			fmt.Printf("  Cooling rate:        %.2f\n", cfg.Engine.CoolingRate)
			fmt.Printf("  Success threshold:   %.2f\n", cfg.Engine.SuccessThreshold)
			fmt.Printf("  Noise amplitude:     %.2f\n", cfg.Engine.NoiseAmplitude)
			fmt.Println()

			fmt.Println("Generator:")
			fmt.Printf("  Kind:   %s\n", cfg.Generator.Kind)
			fmt.Printf("  Ollama: %s\n", cfg.Inference.OllamaURL)
			fmt.Printf("  Model:  %s\n", cfg.Inference.Model)
			fmt.Printf("  Rate:   %.1f req/s (burst %d)\n", cfg.Sampling.RequestsPerSecond, cfg.Sampling.Burst)
			fmt.Println()

			fmt.Println("Store:")
			fmt.Printf("  Backend: %s\n", cfg.Store.Backend)
			switch cfg.Store.Backend {
			case store.BackendRedis:
				fmt.Printf("  URL:     %s\n", cfg.Store.RedisURL)
			case store.BackendDgraph:
				fmt.Printf("  URL:     %s\n", cfg.Store.DgraphURL)
			default:
				fmt.Printf("  Path:    %s\n", cfg.Store.Path)
			}
			fmt.Println()

			fmt.Println("Environment variables:")
			fmt.Println("  ANNEALFLOW_GENERATOR, ANNEALFLOW_OLLAMA_URL, ANNEALFLOW_MODEL")
			fmt.Println("  ANNEALFLOW_STORE_BACKEND, ANNEALFLOW_STORE_PATH, ANNEALFLOW_REDIS_URL, ANNEALFLOW_DGRAPH_URL")
			fmt.Println("  ANNEALFLOW_LOG_LEVEL, ANNEALFLOW_LOG_FORMAT, ANNEALFLOW_METRICS_ENABLED, ANNEALFLOW_METRICS_ADDR")
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.Default().Write(configPath); err != nil {
				return err
			}
			fmt.Printf("✓ Wrote %s\n", configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}
