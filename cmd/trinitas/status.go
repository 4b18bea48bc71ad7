package main

import (
	"fmt"

	"github.com/apto-as/trinitas-core/internal/backend"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print backend health, mode, and resource pressure",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}

		purple := lipgloss.Color("99")
		headerStyle := lipgloss.NewStyle().Foreground(purple).Bold(true).Padding(0, 1)
		cellStyle := lipgloss.NewStyle().Padding(0, 1)

		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(purple)).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			}).
			Headers("BACKEND", "HEALTHY", "FAILURES", "LAST LATENCY")

		for _, id := range []backend.ID{backend.MAIN, backend.LOCAL, backend.HeadlessA, backend.HeadlessB} {
			rec := a.registry.Get(id)
			healthy := "yes"
			if !a.registry.IsHealthy(id) {
				healthy = "no"
			}
			t.Row(string(id), healthy, fmt.Sprintf("%d", rec.ConsecutiveFailures), rec.LastLatency.String())
		}
		fmt.Println(t.String())

		snap := a.monitor.Snapshot()
		fmt.Printf("\nmode: %s\n", a.modeManager.Get())
		fmt.Printf("MAIN pressure: %.2f\n", a.pressure.Pressure())
		fmt.Printf("system memory: %.1f%%  cpu: %.1f%%  admit: %v\n", snap.MemoryPercent, snap.CPUPercent, a.monitor.CanAdmit())
		fmt.Printf("active sessions: %d  idle pool: %d\n", len(a.orchestrator.ListSessions()), a.pool.IdleCount())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
