package main

import (
	"fmt"
	"io"
	"os"

	portal "github.com/hrportal/portal/sdk/golang"
	"github.com/spf13/cobra"
)

var configShowRaw bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or change connection settings",
	Long: `Connection settings live in ~/.portal/config.toml:

  [default]  base_url, codec (json|cbor), request_timeout (e.g. 15s)
  [auth]     token, user_id

PORTAL_BASE_URL, PORTAL_CODEC, PORTAL_TOKEN and PORTAL_USER_ID, from the
environment or a .env file, take precedence over the file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the settings the CLI would connect with",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configShowRaw {
			path, err := configPath()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if os.IsNotExist(err) {
				fmt.Println("No configuration file yet. Run 'portal init <token> --user <id>'.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("cannot read config file: %w", err)
			}
			fmt.Print(string(data))
			return nil
		}

		file, err := loadConfig()
		if err != nil {
			return err
		}
		effective := *file
		applyEnv(&effective, os.Getenv)
		return renderConfig(os.Stdout, file, &effective)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <section.key> <value>",
	Short: "Change one setting in the config file",
	Long: `Keys: default.base_url, default.codec, default.request_timeout,
auth.token, auth.user_id.

Example: portal config set default.codec cbor`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		shown := args[1]
		if args[0] == "auth.token" {
			shown = maskKey(shown)
		}
		fmt.Printf("%s = %s\n", args[0], shown)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

// renderConfig prints the effective settings, marking values that come
// from the environment rather than the file. The token is masked.
func renderConfig(w io.Writer, file, effective *Config) error {
	source := func(fileVal, effVal string) string {
		if effVal != fileVal {
			return "  (env)"
		}
		return ""
	}
	timeout, err := effective.timeout(portal.DefaultRequestTimeout)
	if err != nil {
		return err
	}

	rows := []struct {
		key, value, origin string
	}{
		{"base_url", valueOrDefault(effective.Default.BaseURL, portal.DefaultBaseURL), source(file.Default.BaseURL, effective.Default.BaseURL)},
		{"codec", valueOrDefault(effective.Default.Codec, "json"), source(file.Default.Codec, effective.Default.Codec)},
		{"request_timeout", timeout.String(), ""},
		{"user_id", valueOrDefault(effective.Auth.UserID, "(not set)"), source(file.Auth.UserID, effective.Auth.UserID)},
		{"token", valueOrDefault(maskKey(effective.Auth.Token), "(not set)"), source(file.Auth.Token, effective.Auth.Token)},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%-16s %s%s\n", r.key, r.value, r.origin); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	configShowCmd.Flags().BoolVar(&configShowRaw, "raw", false, "Print the config file as stored")
	configCmd.AddCommand(configShowCmd, configSetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
