// Package cli is the stitch command line: one-shot captures and history.
package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/pagestitch/internal/config"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// NewRootCmd builds the stitch command tree
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stitch",
		Short: "Capture whole web pages as one stitched image",
		Long: `stitch drives Chrome over the DevTools protocol, scrolls a page tile by
tile and composites the snapshots into a single JPEG.

Settings come from the environment (and .env when present), the same
variables the pagestitch server reads.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newCaptureCmd(), newHistoryCmd())
	return cmd
}

func loadConfig() (config.Config, error) {
	return config.FromEnv(os.Getenv)
}
