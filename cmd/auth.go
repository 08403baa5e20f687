package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var authQuiet bool

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage bank authentication",
	Long: `Manage OAuth authentication for the configured banks.

The auth command group provides subcommands to login, logout, check
status, and refresh authentication tokens for bank APIs.

Examples:
  rentendash auth login                # Authenticate with the grant selection policy
  rentendash auth login --grant code   # Force the browser authorization-code flow
  rentendash auth status               # Show authentication status
  rentendash auth refresh              # Force token refresh
  rentendash auth logout               # Clear the stored token`,
}

// authPrint prints output only if the --quiet flag is not set.
func authPrint(format string, args ...interface{}) {
	if !authQuiet {
		fmt.Printf(format, args...)
	}
}

// authPrintln prints a line only if the --quiet flag is not set.
func authPrintln(a ...interface{}) {
	if !authQuiet {
		fmt.Println(a...)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authLogoutCmd)

	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress non-essential output")
}
