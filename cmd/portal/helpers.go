package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	portal "github.com/hrportal/portal/sdk/golang"
)

const connectTimeout = 20 * time.Second

// newLogger returns a stderr logger when --verbose is set.
func newLogger() *slog.Logger {
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// getClient creates a portal client from the effective configuration.
func getClient(cfg *Config, logger *slog.Logger) *portal.Client {
	opts := []portal.ClientOption{portal.WithClientLogger(logger)}
	if cfg.Default.BaseURL != "" {
		opts = append(opts, portal.WithBaseURL(cfg.Default.BaseURL))
	}
	return portal.NewClient(cfg.Auth.Token, opts...)
}

// newProvider builds an unstarted provider for the configured identity.
func newProvider(cfg *Config, logger *slog.Logger, opts ...portal.ProviderOption) (*portal.Provider, error) {
	if cfg.Auth.UserID == "" {
		return nil, fmt.Errorf("no user id configured; run 'portal init <token> --user <id>' or set PORTAL_USER_ID")
	}
	codec, err := portal.CodecByName(cfg.Default.Codec)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.timeout(portal.DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	base := []portal.ProviderOption{
		portal.WithClient(getClient(cfg, logger)),
		portal.WithCodec(codec),
		portal.WithLogger(logger),
		portal.WithRequestTimeout(timeout),
	}
	return portal.NewProvider(cfg.Auth.UserID, append(base, opts...)...)
}

// withProvider connects, runs fn and tears the connection down.
func withProvider(fn func(ctx context.Context, p *portal.Provider, self string) error) error {
	cfg, err := loadEffectiveConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	p, err := newProvider(cfg, newLogger())
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := p.Start(ctx); err != nil {
		return err
	}
	if err := p.WaitConnected(ctx); err != nil {
		return fmt.Errorf("cannot connect to %s (status %s): %w", cfg.Default.BaseURL, p.Status(), err)
	}
	return fn(ctx, p, cfg.Auth.UserID)
}

// printJSON writes v as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// splitList parses a comma-separated id list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// maskKey shows the first 6 and last 4 characters of a credential.
func maskKey(key string) string {
	if len(key) <= 12 {
		return strings.Repeat("*", len(key))
	}
	return key[:6] + "..." + key[len(key)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
