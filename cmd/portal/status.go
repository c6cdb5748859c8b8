package main

import (
	"context"
	"fmt"

	portal "github.com/hrportal/portal/sdk/golang"
	"github.com/spf13/cobra"
)

var statusOffline bool

func init() {
	statusCmd.Flags().BoolVar(&statusOffline, "offline", false, "Only print configuration, do not connect")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and connection status",
	Long:  "Display the effective configuration, then connect and report presence and unread counts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEffectiveConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL:  %s\n", valueOrDefault(cfg.Default.BaseURL, portal.DefaultBaseURL+" (default)"))
		fmt.Printf("  Codec:     %s\n", valueOrDefault(cfg.Default.Codec, "json"))
		fmt.Printf("  Timeout:   %s\n", valueOrDefault(cfg.Default.RequestTimeout, portal.DefaultRequestTimeout.String()+" (default)"))
		fmt.Println()
		fmt.Println("Auth:")
		fmt.Printf("  User ID:   %s\n", valueOrDefault(cfg.Auth.UserID, "(not set)"))
		if cfg.Auth.Token != "" {
			fmt.Printf("  Token:     %s\n", maskKey(cfg.Auth.Token))
		} else {
			fmt.Println("  Token:     (not set)")
		}

		if statusOffline || cfg.Auth.UserID == "" {
			return nil
		}

		fmt.Println()
		fmt.Println("Live status:")
		err = withProvider(func(ctx context.Context, p *portal.Provider, self string) error {
			if err := p.Refresh(ctx); err != nil {
				fmt.Printf("  Refresh failed: %v\n", err)
			}
			fmt.Printf("  Connection:    %s\n", p.Status())
			fmt.Printf("  Online users:  %d\n", p.Presence().Count())
			fmt.Printf("  Employees:     %d\n", len(p.Directory().Employees()))
			fmt.Printf("  Groups:        %d\n", len(p.Directory().Groups()))
			fmt.Printf("  Notifications: %d (%d unread)\n",
				len(p.Notifications().All()), p.Notifications().UnreadCount())
			return nil
		})
		if err != nil {
			fmt.Printf("  Error: %v\n", err)
		}
		return nil
	},
}
