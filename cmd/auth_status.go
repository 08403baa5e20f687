package cmd

import (
	"errors"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"rentendash/internal/oauth"
)

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long: `Show the current authentication status for the configured bank.

This command displays whether a token is stored, when it expires, and
whether a refresh token is available.

Examples:
  rentendash auth status`,
	RunE: runAuthStatus,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, mgr, err := setup()
	if err != nil {
		return err
	}
	identity := cfg.Bank.Name

	authPrintln("Bank")
	authPrint("  Identity:  %s\n", identity)

	rec, err := mgr.Store().Record(identity)
	if err != nil {
		var noRecord *oauth.ErrNoRecord
		if errors.As(err, &noRecord) {
			authPrint("  Status:    %s\n", text.FgYellow.Sprint("Not authenticated"))
			authPrint("             Run: rentendash auth login\n")
			return nil
		}
		authPrint("  Status:    %s\n", text.FgRed.Sprint("Token unreadable"))
		authPrint("             Run: rentendash auth login\n")
		return nil
	}

	if mgr.IsTokenValid(identity) {
		authPrint("  Status:    %s\n", text.FgGreen.Sprint("Authenticated"))
	} else {
		authPrint("  Status:    %s\n", text.FgYellow.Sprint("Token expired"))
	}
	if rec.TokenType != "" {
		authPrint("  Type:      %s\n", rec.TokenType)
	}
	if rec.Scope != "" {
		authPrint("  Scope:     %s\n", rec.Scope)
	}
	if !rec.ExpiresAt().IsZero() {
		authPrint("  Expires:   %s\n", formatExpiryWithDirection(rec.ExpiresAt()))
	}
	if rec.RefreshToken != "" {
		authPrint("  Refresh:   %s\n", text.FgGreen.Sprint("Available"))
	} else {
		authPrint("  Refresh:   %s\n", text.FgYellow.Sprint("Not available (re-auth required on expiry)"))
	}
	return nil
}
