package main

import (
	"fmt"

	"github.com/apto-as/trinitas-core/internal/mode"

	"github.com/spf13/cobra"
)

var modeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Inspect or change the process-wide execution mode override",
}

var modeGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		fmt.Println(a.modeManager.Get())
		return nil
	},
}

var modeSetCmd = &cobra.Command{
	Use:   "set [FULL_LOCAL|CLAUDE_ONLY|HYBRID|AUTO]",
	Short: "Set the current mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		if !a.modeManager.Set(mode.Mode(args[0])) {
			return fmt.Errorf("invalid mode %q (want FULL_LOCAL, CLAUDE_ONLY, HYBRID, or AUTO)", args[0])
		}
		fmt.Printf("mode set to %s\n", args[0])
		return nil
	},
}

func init() {
	modeCmd.AddCommand(modeGetCmd, modeSetCmd)
	rootCmd.AddCommand(modeCmd)
}
