package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage orchestrator sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session and print its ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		userID, _ := cmd.Flags().GetString("user")
		priority, _ := cmd.Flags().GetInt("priority")

		s, err := a.orchestrator.CreateSession(userID, priority, sessionLimitsFromFlags(cmd))
		if err != nil {
			return err
		}
		fmt.Println(s.ID)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active session IDs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		ids := a.orchestrator.ListSessions()
		if len(ids) == 0 {
			fmt.Println("No active sessions.")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close [id]",
	Short: "Close a session and return it to the pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		if err := a.orchestrator.CloseSession(args[0]); err != nil {
			return err
		}
		fmt.Printf("session %s closed\n", args[0])
		return nil
	},
}

var sessionMigrateCmd = &cobra.Command{
	Use:   "migrate [id] [target]",
	Short: "Migrate a session to another node (best-effort drain + handoff)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := a.orchestrator.Migrate(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("session %s migrating to %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionCreateCmd, sessionListCmd, sessionCloseCmd, sessionMigrateCmd)
	sessionCreateCmd.Flags().String("user", "", "owning user ID")
	sessionCreateCmd.Flags().Int("priority", 5, "session priority (0-9)")
	sessionCreateCmd.Flags().Int("max-concurrent", 0, "override max concurrent requests (0 = default)")
	rootCmd.AddCommand(sessionCmd)
}
