package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	portal "github.com/hrportal/portal/sdk/golang"
	"github.com/spf13/cobra"
)

var watchNoRefresh bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect and print live events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEffectiveConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		run := uuid.NewString()
		logger := newLogger().With("run", run)
		p, err := newProvider(cfg, logger, portal.WithRefreshOnConnect(!watchNoRefresh))
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p.OnChange(func(c portal.Change) { printChange(p, c) })

		fmt.Printf("Watching as %s (run %s). Ctrl-C to stop.\n", cfg.Auth.UserID, run)
		if err := p.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		fmt.Println("\nStopped.")
		return nil
	},
}

func printChange(p *portal.Provider, c portal.Change) {
	switch c.Store {
	case portal.StoreStatus:
		fmt.Printf("status: %s\n", c.Key)
	case portal.StorePresence:
		fmt.Printf("presence: %d online\n", p.Presence().Count())
	case portal.StoreConversations:
		thread := p.Conversations().Messages(c.Key)
		if len(thread) == 0 {
			return
		}
		last := thread[len(thread)-1]
		fmt.Printf("message [%s] %s: %s\n", c.Key, valueOrDefault(last.Sender.Name, last.Sender.ID), last.Content)
	case portal.StoreNotifications:
		fmt.Printf("notifications: %d unread\n", p.Notifications().UnreadCount())
	case portal.StoreDirectory:
		fmt.Printf("directory: %s (%d groups)\n", c.Key, len(p.Directory().Groups()))
	case portal.StoreTyping:
		if c.Key != "" {
			fmt.Printf("typing in %s: %v\n", c.Key, p.Typing().InRoom(c.Key))
		}
	}
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoRefresh, "no-refresh", false, "Do not fetch groups and notifications on connect")
	rootCmd.AddCommand(watchCmd)
}
