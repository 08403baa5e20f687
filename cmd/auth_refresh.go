package cmd

import (
	"github.com/spf13/cobra"
)

// authRefreshCmd represents the auth refresh command
var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force token refresh",
	Long: `Force a refresh of the stored authentication token.

This requires an existing token record with a refresh token. It can be
useful when the access token has been invalidated server-side.

Examples:
  rentendash auth refresh`,
	RunE: runAuthRefresh,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored authentication token",
	Long: `Clear the stored OAuth token for the configured bank, requiring
re-authentication on the next connection.

Examples:
  rentendash auth logout`,
	RunE: runAuthLogout,
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	cfg, mgr, err := setup()
	if err != nil {
		return err
	}
	identity := cfg.Bank.Name

	authPrint("Refreshing token for %s...\n", identity)
	if _, err := mgr.RefreshToken(cmd.Context(), identity, cfg.Bank); err != nil {
		return err
	}

	authPrintln("Token refreshed successfully.")
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	cfg, mgr, err := setup()
	if err != nil {
		return err
	}

	mgr.Store().Delete(cfg.Bank.Name)
	authPrint("Logged out from %s\n", cfg.Bank.Name)
	return nil
}
