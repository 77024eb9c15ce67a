package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/pagestitch/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent capture-and-send attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := history.NewStore(cfg.HistoryDir)
			if err != nil {
				return err
			}

			if clearAll {
				if err := store.Clear(); err != nil {
					return err
				}
				cmd.Println("history cleared")
				return nil
			}

			entries := store.List()
			if len(entries) == 0 {
				cmd.Println("no captures sent yet")
				return nil
			}

			cmd.Println(headerStyle.Render(fmt.Sprintf("%-20s %-16s %-6s %s", "CAPTURED", "CATEGORY", "STATUS", "URL")))
			for _, e := range entries {
				status := okStyle.Render(fmt.Sprintf("%-6d", e.Status))
				if !e.OK {
					status = failStyle.Render(fmt.Sprintf("%-6d", e.Status))
				}
				cmd.Printf("%-20s %-16s %s %s\n", e.CapturedAt.Local().Format("2006-01-02 15:04:05"), e.CategoryName, status, e.URL)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete all history entries")
	return cmd
}
