package main

import (
	"context"
	"fmt"
	"time"

	portal "github.com/hrportal/portal/sdk/golang"
	"github.com/spf13/cobra"
)

var (
	presenceJSON bool
	presenceWait time.Duration
)

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "Show who is online",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, p *portal.Provider, self string) error {
			if _, err := p.Directory().RefreshEmployees(ctx); err != nil {
				return fmt.Errorf("fetch failed: %w", err)
			}
			// The online set is pushed after register; give it a moment.
			select {
			case <-time.After(presenceWait):
			case <-ctx.Done():
			}

			employees := p.Directory().Employees()
			if presenceJSON {
				return printJSON(employees)
			}
			fmt.Printf("%d online\n", p.Presence().Count())
			for _, e := range employees {
				state := "offline"
				if e.Online {
					state = "online"
				}
				fmt.Printf("  %-8s %s  %s\n", state, e.ID, valueOrDefault(e.Name, e.Email))
			}
			return nil
		})
	},
}

func init() {
	presenceCmd.Flags().BoolVar(&presenceJSON, "json", false, "Output JSON")
	presenceCmd.Flags().DurationVar(&presenceWait, "wait", time.Second, "How long to wait for the online set")
	rootCmd.AddCommand(presenceCmd)
}
