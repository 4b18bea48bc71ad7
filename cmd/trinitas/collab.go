package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/apto-as/trinitas-core/internal/backend"
	"github.com/apto-as/trinitas-core/internal/coordinator"
	"github.com/apto-as/trinitas-core/internal/persona"
	"github.com/apto-as/trinitas-core/internal/task"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
)

// routerExecutor adapts the Router as a coordinator.Executor, routing each
// persona's task independently through the same selection/retry policy a
// solo task would get.
type routerExecutor struct {
	a *app
}

func (e routerExecutor) Execute(ctx context.Context, p persona.Persona, t *task.Task) (*task.ExecutionResult, error) {
	return e.a.router.Route(ctx, t, backend.ID(p.PreferredBackend))
}

var collabCmd = &cobra.Command{
	Use:   "collab [mode] persona1[:leader] persona2 ... -- [task]",
	Short: "Run a collaboration across personas in sequential, parallel, hierarchical, or consensus mode",
	Long: `collab runs the Collaboration Coordinator in the requested mode over the
personas listed before "--", with the arguments after "--" joined as the task.
Without "--", the second argument is the task and any further arguments are
personas. A persona list given with --personas is tokenized with shell-style
quoting rules. Append :leader to a persona token to mark it as hierarchical
leader, e.g. "architect:leader".`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}

		modeArg, description := args[0], args[1]
		personaTokens := args[2:]
		if dash := cmd.ArgsLenAtDash(); dash >= 1 {
			personaTokens = args[1:dash]
			description = strings.Join(args[dash:], " ")
		}
		if len(personaTokens) == 0 {
			raw, _ := cmd.Flags().GetString("personas")
			tokens, err := shlex.Split(raw)
			if err != nil {
				return fmt.Errorf("failed to parse --personas: %w", err)
			}
			personaTokens = tokens
		}
		if len(personaTokens) == 0 {
			return fmt.Errorf("at least one persona is required")
		}

		personas := make([]persona.Persona, 0, len(personaTokens))
		for _, tok := range personaTokens {
			id, isLeader := splitLeaderSuffix(tok)
			personas = append(personas, persona.Persona{ID: id, IsLeader: isLeader})
		}

		collabMode, err := parseCollabMode(modeArg)
		if err != nil {
			return err
		}

		c := coordinator.New(routerExecutor{a: a})
		outcome, err := c.Run(context.Background(), &task.Task{
			ID:          task.NewID(),
			Description: description,
		}, personas, collabMode)
		if err != nil {
			return err
		}

		fmt.Printf("verdict=%s alignment=%.2f\n", outcome.Verdict, outcome.Alignment)
		for _, r := range outcome.Results {
			status := "ok"
			if r.Failed {
				status = "failed"
			}
			fmt.Printf("  %s: %s\n", r.PersonaID, status)
		}
		return nil
	},
}

func parseCollabMode(s string) (coordinator.Mode, error) {
	switch s {
	case "sequential":
		return coordinator.Sequential, nil
	case "parallel":
		return coordinator.Parallel, nil
	case "hierarchical":
		return coordinator.Hierarchical, nil
	case "consensus":
		return coordinator.Consensus, nil
	default:
		return 0, fmt.Errorf("unknown collaboration mode %q (want sequential, parallel, hierarchical, or consensus)", s)
	}
}

func splitLeaderSuffix(tok string) (id string, isLeader bool) {
	const suffix = ":leader"
	if len(tok) > len(suffix) && tok[len(tok)-len(suffix):] == suffix {
		return tok[:len(tok)-len(suffix)], true
	}
	return tok, false
}

func init() {
	rootCmd.AddCommand(collabCmd)
	collabCmd.Flags().String("personas", "", "shell-quoted persona list, alternative to trailing args")
}
