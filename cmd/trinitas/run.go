package main

import (
	"context"
	"fmt"

	"github.com/apto-as/trinitas-core/internal/classifier"
	"github.com/apto-as/trinitas-core/internal/delegation"
	"github.com/apto-as/trinitas-core/internal/mode"
	"github.com/apto-as/trinitas-core/internal/session"
	"github.com/apto-as/trinitas-core/internal/task"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [description]",
	Short: "Route a single task through the classifier, delegation engine, and router",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return fmt.Errorf("failed to build runtime: %w", err)
		}

		kind, _ := cmd.Flags().GetString("kind")
		priority, _ := cmd.Flags().GetInt("priority")
		tokens, _ := cmd.Flags().GetInt("tokens")

		t := &task.Task{
			ID:              task.NewID(),
			Kind:            kind,
			Description:     args[0],
			Priority:        priority,
			EstimatedTokens: tokens,
		}
		t.Complexity = classifier.Classify(t)

		plan := delegation.DecideWithMode(t, a.pressure.Pressure(), a.modeManager.Get(), mode.ClassSupport)

		ctx := context.Background()

		if plan.Decomposition != nil {
			fmt.Printf("decomposed: leader=%s\n", plan.Decomposition.Leader)
			phases := append(append([]*task.Task{}, plan.Decomposition.LocalPhase...), plan.Decomposition.MainPhase...)
			var prior []any
			for _, sub := range phases {
				if len(prior) > 0 {
					sub = sub.WithContextValue("prior_results", append([]any(nil), prior...))
				}
				result, err := a.router.Route(ctx, sub, plan.PreferredBackend)
				printResult(sub, result, err)
				if err == nil {
					prior = append(prior, result.Payload)
				}
			}
			return nil
		}

		result, err := a.router.Route(ctx, plan.SingleTask, plan.PreferredBackend)
		printResult(plan.SingleTask, result, err)
		return nil
	},
}

func printResult(t *task.Task, result *task.ExecutionResult, err error) {
	if err != nil {
		fmt.Printf("[%s] %s -> error: %v\n", t.Complexity, t.ID, err)
		return
	}
	fmt.Printf("[%s] %s -> executor=%s confidence=%.2f tokens=%d\n",
		t.Complexity, t.ID, result.ExecutorID, result.Confidence, result.TokensUsed)
}

// sessionLimitsFromFlags builds session.ResourceLimits from CLI overrides,
// falling back to defaults (shared with the session subcommand).
func sessionLimitsFromFlags(cmd *cobra.Command) session.ResourceLimits {
	limits := session.DefaultResourceLimits()
	if v, err := cmd.Flags().GetInt("max-concurrent"); err == nil && v > 0 {
		limits.MaxConcurrentRequests = v
	}
	return limits
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("kind", "", "task kind hint for the classifier")
	runCmd.Flags().Int("priority", 5, "task priority (0-9)")
	runCmd.Flags().Int("tokens", 0, "estimated token count")
}
