package main

import (
	"context"
	"fmt"
	"strings"

	portal "github.com/hrportal/portal/sdk/golang"
	"github.com/spf13/cobra"
)

var (
	groupsListJSON      bool
	groupsCreateMembers string
	groupsCreateJSON    bool
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Manage chat groups",
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the groups you belong to",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, p *portal.Provider, self string) error {
			groups, err := p.Directory().RefreshGroups(ctx)
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			if groupsListJSON {
				return printJSON(groups)
			}
			if len(groups) == 0 {
				fmt.Println("No groups found.")
				return nil
			}
			for _, g := range groups {
				owner := ""
				if g.Creator == self {
					owner = " (owner)"
				}
				fmt.Printf("%s  %s%s  [%s]\n", g.ID, g.Name, owner, strings.Join(g.Members, ", "))
			}
			return nil
		})
	},
}

var groupsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, p *portal.Provider, self string) error {
			g, err := p.Groups().Create(ctx, args[0], splitList(groupsCreateMembers))
			if err != nil {
				return fmt.Errorf("create failed: %w", err)
			}
			if groupsCreateJSON {
				return printJSON(g)
			}
			fmt.Printf("Group created: %s (%s), %d members\n", g.Name, g.ID, len(g.Members))
			return nil
		})
	},
}

var groupsAddCmd = &cobra.Command{
	Use:   "add <group-id> <member-id>[,<member-id>...]",
	Short: "Add members to a group you created",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGroups(func(ctx context.Context, p *portal.Provider) error {
			if err := p.Groups().AddMembers(ctx, args[0], splitList(args[1])); err != nil {
				return fmt.Errorf("add failed: %w", err)
			}
			fmt.Println("Members added.")
			return nil
		})
	},
}

var groupsRemoveCmd = &cobra.Command{
	Use:   "remove <group-id> <member-id>",
	Short: "Remove a member from a group you created",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGroups(func(ctx context.Context, p *portal.Provider) error {
			if err := p.Groups().RemoveMember(ctx, args[0], args[1]); err != nil {
				return fmt.Errorf("remove failed: %w", err)
			}
			fmt.Println("Member removed.")
			return nil
		})
	},
}

var groupsDeleteCmd = &cobra.Command{
	Use:   "delete <group-id>",
	Short: "Delete a group you created",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGroups(func(ctx context.Context, p *portal.Provider) error {
			if err := p.Groups().Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			fmt.Println("Group deleted.")
			return nil
		})
	},
}

// withGroups loads the group list first so the creator check applies.
func withGroups(fn func(ctx context.Context, p *portal.Provider) error) error {
	return withProvider(func(ctx context.Context, p *portal.Provider, self string) error {
		if _, err := p.Directory().RefreshGroups(ctx); err != nil {
			return fmt.Errorf("cannot load groups: %w", err)
		}
		return fn(ctx, p)
	})
}

func init() {
	groupsListCmd.Flags().BoolVar(&groupsListJSON, "json", false, "Output JSON")
	groupsCreateCmd.Flags().StringVar(&groupsCreateMembers, "members", "", "Comma-separated list of member user IDs")
	groupsCreateCmd.Flags().BoolVar(&groupsCreateJSON, "json", false, "Output JSON")

	groupsCmd.AddCommand(groupsListCmd, groupsCreateCmd, groupsAddCmd, groupsRemoveCmd, groupsDeleteCmd)
	rootCmd.AddCommand(groupsCmd)
}
