package main

import (
	"context"
	"fmt"

	portal "github.com/hrportal/portal/sdk/golang"
	"github.com/spf13/cobra"
)

var (
	notificationsJSON        bool
	notificationsReadAll     bool
	notificationsSendType    string
	notificationsSendMessage string
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "Read and send notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, p *portal.Provider, self string) error {
			list, err := p.Notifications().FetchAll(ctx, self)
			if err != nil {
				return fmt.Errorf("fetch failed: %w", err)
			}
			return printNotifications(list)
		})
	},
}

var notificationsUnreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "List unread notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, p *portal.Provider, self string) error {
			list, err := p.Notifications().FetchUnread(ctx, self)
			if err != nil {
				return fmt.Errorf("fetch failed: %w", err)
			}
			return printNotifications(list)
		})
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read [notification-id...]",
	Short: "Mark notifications as read",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !notificationsReadAll {
			return fmt.Errorf("pass notification IDs or --all")
		}
		return withProvider(func(ctx context.Context, p *portal.Provider, self string) error {
			ids := args
			if notificationsReadAll {
				unread, err := p.Notifications().FetchUnread(ctx, self)
				if err != nil {
					return fmt.Errorf("fetch failed: %w", err)
				}
				ids = nil
				for _, n := range unread {
					ids = append(ids, n.ID)
				}
			}
			if len(ids) == 0 {
				fmt.Println("Nothing to mark.")
				return nil
			}
			if err := p.Notifications().MarkRead(ctx, self, ids); err != nil {
				return fmt.Errorf("mark read failed: %w", err)
			}
			fmt.Printf("Marked %d notification(s) as read.\n", len(ids))
			return nil
		})
	},
}

var notificationsSendCmd = &cobra.Command{
	Use:   "send <recipient-id>",
	Short: "Send a notification to a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, p *portal.Provider, self string) error {
			n, err := p.Notifications().SendNotification(ctx, portal.NotificationRequest{
				Recipient: args[0],
				Sender:    self,
				Type:      portal.NotificationType(notificationsSendType),
				Content:   notificationsSendMessage,
			})
			if err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
			if notificationsJSON {
				return printJSON(n)
			}
			fmt.Printf("Notification sent to %s\n", n.Recipient)
			return nil
		})
	},
}

func printNotifications(list []portal.Notification) error {
	if notificationsJSON {
		return printJSON(list)
	}
	if len(list) == 0 {
		fmt.Println("No notifications.")
		return nil
	}
	for _, n := range list {
		mark := " "
		if !n.Read {
			mark = "*"
		}
		fmt.Printf("%s %s  %-18s %s  %s\n", mark, formatTime(n.CreatedAt), n.Type, n.ID, n.Content)
	}
	return nil
}

func init() {
	notificationsCmd.PersistentFlags().BoolVar(&notificationsJSON, "json", false, "Output JSON")
	notificationsReadCmd.Flags().BoolVar(&notificationsReadAll, "all", false, "Mark every unread notification")
	notificationsSendCmd.Flags().StringVar(&notificationsSendType, "type", string(portal.NotificationMessage),
		"Notification type (message, leave_approval, leave_rejection, meeting_scheduled, meeting_updated)")
	notificationsSendCmd.Flags().StringVarP(&notificationsSendMessage, "message", "m", "", "Notification text")

	notificationsCmd.AddCommand(notificationsListCmd, notificationsUnreadCmd, notificationsReadCmd, notificationsSendCmd)
	rootCmd.AddCommand(notificationsCmd)
}
