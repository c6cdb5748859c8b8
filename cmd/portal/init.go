package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	initUserID  string
	initBaseURL string
)

func init() {
	initCmd.Flags().StringVar(&initUserID, "user", "", "User ID to register as (required)")
	initCmd.Flags().StringVar(&initBaseURL, "base-url", "", "Portal base URL")
	_ = initCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <token>",
	Short: "Store credentials in ~/.portal/config.toml",
	Long:  "Initialize the portal CLI by storing your session token and user ID in the local configuration file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.Auth.Token = args[0]
		cfg.Auth.UserID = initUserID
		if initBaseURL != "" {
			cfg.Default.BaseURL = initBaseURL
		}
		if cfg.Default.Codec == "" {
			cfg.Default.Codec = "json"
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Credentials saved to %s\n", path)
		return nil
	},
}
