package main

import (
	"fmt"
	"os"

	"github.com/apto-as/trinitas-core/internal/config"
	"github.com/apto-as/trinitas-core/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "trinitas",
	Short: "Trinitas AI task router and orchestrator",
	Long:  `Trinitas routes tasks across local and hosted backends, decomposes heavy work, and coordinates multi-persona collaboration.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup("info")
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.trinitas/config.yaml)")
}
