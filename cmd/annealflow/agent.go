package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quantumflow/annealflow/internal/agent"
	"github.com/quantumflow/annealflow/internal/models"
)

// tunableFlags holds the optional tunables shared by create and update
type tunableFlags struct {
	goal             string
	temperatureScale float64
	creativityBias   float64
	maxIterations    int
	learningRate     float64
}

func (f *tunableFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.goal, "goal", "", "what the agent is optimizing for")
	cmd.Flags().Float64Var(&f.temperatureScale, "temperature-scale", 0, "starting temperature multiplier (0, 1]")
	cmd.Flags().Float64Var(&f.creativityBias, "creativity", 0, "creativity bias [0, 1]")
	cmd.Flags().IntVar(&f.maxIterations, "max-iterations", 0, "iteration cap per task")
	cmd.Flags().Float64Var(&f.learningRate, "learning-rate", 0, "learning rate [0, 1]")
}

// agentCmd groups the agent management commands
func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
	}
	cmd.AddCommand(agentCreateCmd(), agentListCmd(), agentShowCmd(), agentUpdateCmd(), agentDeleteCmd())
	return cmd
}

func agentCreateCmd() *cobra.Command {
	var (
		category string
		tunables tunableFlags
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			req := agent.CreateRequest{
				Name:     args[0],
				Category: models.AgentCategory(strings.ToLower(category)),
				Goal:     tunables.goal,
			}
			flags := cmd.Flags()
			if flags.Changed("temperature-scale") {
				req.TemperatureScale = &tunables.temperatureScale
			}
			if flags.Changed("creativity") {
				req.CreativityBias = &tunables.creativityBias
			}
			if flags.Changed("max-iterations") {
				req.MaxIterations = &tunables.maxIterations
			}
			if flags.Changed("learning-rate") {
				req.LearningRate = &tunables.learningRate
			}

			profile, err := a.orchestrator.CreateAgent(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Printf("✓ Created %s agent %s (%s)\n", profile.Category, profile.Name, profile.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", string(models.CategoryResearcher), "researcher, coder, analyst or writer")
	tunables.register(cmd)
	return cmd
}

func agentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			profiles := a.orchestrator.ListAgents()
			if len(profiles) == 0 {
				fmt.Println("No agents. Create one with: annealflow agent create <name>")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tTASKS\tSUCCESS\tAVG QUALITY\tTREND\tSTRATEGY")
			for _, p := range profiles {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.2f\t%s\t%s\n",
					shortID(p.ID), truncate(p.Name, 24), p.Category,
					p.Metrics.TotalTasks, p.Metrics.SuccessfulTasks,
					p.Metrics.AverageQuality, p.Metrics.Trend, p.Metrics.BestStrategy)
			}
			return w.Flush()
		},
	}
}

func agentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <agent>",
		Short: "Show an agent's tunables, state and history",
		Args:  cobra.ExactArgs(1),
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
			printProfile(p)
			return nil
		},
	}
}

func agentUpdateCmd() *cobra.Command {
	var (
		name     string
		category string
		tunables tunableFlags
	)

	cmd := &cobra.Command{
		Use:   "update <agent>",
		Short: "Change an agent's name, goal or tunables",
		Args:  cobra.ExactArgs(1),
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

			var req agent.UpdateRequest
			flags := cmd.Flags()
			if flags.Changed("name") {
				req.Name = &name
			}
			if flags.Changed("category") {
				c := models.AgentCategory(strings.ToLower(category))
				req.Category = &c
			}
			if flags.Changed("goal") {
				req.Goal = &tunables.goal
			}
			if flags.Changed("temperature-scale") {
				req.TemperatureScale = &tunables.temperatureScale
			}
			if flags.Changed("creativity") {
				req.CreativityBias = &tunables.creativityBias
			}
			if flags.Changed("max-iterations") {
				req.MaxIterations = &tunables.maxIterations
			}
			if flags.Changed("learning-rate") {
				req.LearningRate = &tunables.learningRate
			}

			updated, err := a.orchestrator.UpdateAgent(cmd.Context(), p.ID, req)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Updated %s\n", updated.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&category, "category", "", "must match the current category")
	tunables.register(cmd)
	return cmd
}

func agentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <agent>",
		Short: "Delete an agent",
		Args:  cobra.ExactArgs(1),
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
			if err := a.orchestrator.DeleteAgent(cmd.Context(), p.ID); err != nil {
				return err
			}
			fmt.Printf("✓ Deleted %s\n", p.Name)
			return nil
		},
	}
}

func printProfile(p *models.AgentProfile) {
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Printf("🤖 %s (%s)\n", p.Name, p.Category)
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Printf("ID:           %s\n", p.ID)
	if p.Goal != "" {
		fmt.Printf("Goal:         %s\n", p.Goal)
	}
	fmt.Printf("Temperature:  %.2f   Creativity: %.2f   Max iterations: %d   Learning rate: %.2f\n",
		p.TemperatureScale, p.CreativityBias, p.MaxIterations, p.LearningRate)
	fmt.Printf("Created:      %s\n", p.CreatedAt.Format("2006-01-02 15:04"))

	fmt.Println("\n## Performance")
	m := p.Metrics
	fmt.Printf("   Tasks: %d (%d successful) | Avg quality: %.2f | Avg time: %s\n",
		m.TotalTasks, m.SuccessfulTasks, m.AverageQuality, m.AverageDuration.Round(1e6))
	fmt.Printf("   Progress: %.0f%% | Trend: %s | Best strategy: %s\n",
		m.LearningProgress*100, m.Trend, m.BestStrategy)

	if len(p.StrategyOrder) > 0 {
		fmt.Println("\n## Strategies")
		for _, name := range p.StrategyOrder {
			if s := p.Strategies[name]; s != nil {
				fmt.Printf("   • %-12s %3d uses  %.0f%% success\n", name, s.Uses, s.SuccessRate*100)
			}
		}
	}

	if n := len(p.TaskHistory); n > 0 {
		fmt.Println("\n## Recent tasks")
		start := n - 5
		if start < 0 {
			start = 0
		}
		for i := n - 1; i >= start; i-- {
			r := p.TaskHistory[i]
			mark := "✓"
			if !r.Success {
				mark = "✗"
			}
			fmt.Printf("   %s %.2f  %s\n", mark, r.Quality, truncate(r.Task, 60))
		}
	}

	if n := len(p.LearningHistory); n > 0 {
		fmt.Println("\n## Latest lesson")
		fmt.Printf("   %s\n", p.LearningHistory[n-1].Lesson)
	}
	fmt.Println()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
