package main

import (
	"context"
	"fmt"

	portal "github.com/hrportal/portal/sdk/golang"
	"github.com/spf13/cobra"
)

// ============================================================================
// Flag variables
// ============================================================================

var (
	// chat send
	chatSendRoom  bool
	chatSendMedia string
	chatSendKind  string
	chatSendJSON  bool

	// chat history
	chatHistoryRoom   bool
	chatHistorySorted bool
	chatHistoryJSON   bool
)

// ============================================================================
// Root chat command
// ============================================================================

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Direct and group messaging",
}

// ============================================================================
// chat send
// ============================================================================

var chatSendCmd = &cobra.Command{
	Use:   "send <user-or-room-id> <message>",
	Short: "Send a message to a user, or to a group with --room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, content := args[0], args[1]
		return withProvider(func(ctx context.Context, p *portal.Provider, self string) error {
			msg := portal.Message{Sender: portal.Sender{ID: self}, Content: content}
			if chatSendMedia != "" {
				msg.Media = &portal.Media{URL: chatSendMedia, Type: portal.MediaKind(chatSendKind)}
			}

			var (
				sent portal.Message
				err  error
			)
			if chatSendRoom {
				msg.RoomID = target
				sent, err = p.Conversations().SendRoom(ctx, msg)
			} else {
				msg.Recipient = target
				sent, err = p.Conversations().SendDirect(ctx, msg)
			}
			if err != nil {
				return fmt.Errorf("send failed: %w", err)
			}

			if chatSendJSON {
				return printJSON(sent)
			}
			fmt.Printf("Message sent to conversation %s\n", portal.ConversationKey(sent))
			fmt.Printf("  Message ID: %s\n", valueOrDefault(sent.ID, "(pending)"))
			fmt.Printf("  Content:    %s\n", sent.Content)
			return nil
		})
	},
}

// ============================================================================
// chat history
// ============================================================================

var chatHistoryCmd = &cobra.Command{
	Use:   "history <user-or-room-id>",
	Short: "Print the history with a user, or of a group with --room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]
		return withProvider(func(ctx context.Context, p *portal.Provider, self string) error {
			var (
				key string
				err error
			)
			if chatHistoryRoom {
				key = target
				_, err = p.Conversations().FetchRoom(ctx, target)
			} else {
				key = portal.DirectKey(self, target)
				_, err = p.Conversations().FetchDirect(ctx, self, target)
			}
			if err != nil {
				return fmt.Errorf("fetch failed: %w", err)
			}

			messages := p.Conversations().Messages(key)
			if chatHistorySorted {
				messages = p.Conversations().Sorted(key)
			}
			if chatHistoryJSON {
				return printJSON(messages)
			}
			if len(messages) == 0 {
				fmt.Println("No messages found.")
				return nil
			}
			for _, m := range messages {
				fmt.Printf("[%s] %s: %s\n", formatTime(m.CreatedAt), valueOrDefault(m.Sender.Name, m.Sender.ID), m.Content)
				if m.Media != nil {
					fmt.Printf("    %s: %s\n", m.Media.Type, m.Media.URL)
				}
			}
			return nil
		})
	},
}

// ============================================================================
// Registration
// ============================================================================

func init() {
	// chat send
	chatSendCmd.Flags().BoolVar(&chatSendRoom, "room", false, "Treat the target as a group ID")
	chatSendCmd.Flags().StringVar(&chatSendMedia, "media", "", "Attachment URL")
	chatSendCmd.Flags().StringVar(&chatSendKind, "media-type", "image", "Attachment kind (image, video, document)")
	chatSendCmd.Flags().BoolVar(&chatSendJSON, "json", false, "Output JSON")

	// chat history
	chatHistoryCmd.Flags().BoolVar(&chatHistoryRoom, "room", false, "Treat the target as a group ID")
	chatHistoryCmd.Flags().BoolVar(&chatHistorySorted, "sorted", false, "Order by timestamp instead of arrival")
	chatHistoryCmd.Flags().BoolVar(&chatHistoryJSON, "json", false, "Output JSON")

	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatHistoryCmd)
	rootCmd.AddCommand(chatCmd)
}
