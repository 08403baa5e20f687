package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"rentendash/internal/config"
	"rentendash/internal/oauth"
	"rentendash/pkg/logging"
)

// setup loads the configuration, initializes logging and creates the
// OAuth manager. Every command that touches tokens goes through here.
func setup() (config.Config, *oauth.Manager, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := logging.ParseLevel(cfg.App.LogLevel)
	if debugMode || cfg.App.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	mgr, err := oauth.NewManager(cfg.OAuth, cfg.Security.TokenEncryptionKey)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, mgr, nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiryWithDirection formats a time as "in X" or "expired X ago".
func formatExpiryWithDirection(expiresAt time.Time) string {
	remaining := time.Until(expiresAt)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	expiredAgo := -remaining
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(expiredAgo))
}
