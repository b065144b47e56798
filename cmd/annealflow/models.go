package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantumflow/annealflow/internal/inference"
)

// modelsCmd manages the Ollama models used by the generator
func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List or pull Ollama models",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List models available on the Ollama server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := inference.NewClient(&cfg.Inference)
			available, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println("\nAvailable models:")
			for _, m := range available {
				marker := " "
				if m == cfg.Inference.Model {
					marker = "*"
				}
				fmt.Printf(" %s %s\n", marker, m)
			}
			fmt.Println()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pull [model]",
		Short: "Pull a model (default: the configured one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := cfg.Inference.Model
			if len(args) == 1 {
				name = args[0]
			}

			client := inference.NewClient(&cfg.Inference)
			fmt.Printf("📥 Pulling %s...\n", name)
			err := client.PullModel(cmd.Context(), name, func(p inference.PullProgress) {
				if p.Total > 0 {
					fmt.Printf("\r   %s %5.1f%%   ", p.Status, float64(p.Completed)/float64(p.Total)*100)
				} else {
					fmt.Printf("\r   %s            ", p.Status)
				}
			})
			fmt.Println()
			if err != nil {
				return err
			}
			fmt.Printf("✓ %s ready\n", name)
			return nil
		},
	})

	return cmd
}
