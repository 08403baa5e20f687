package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"rentendash/internal/oauth"
)

// Exit codes for CLI commands. These follow common conventions so the
// dashboard can be scripted.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// Flags shared across all commands.
var (
	configPath string
	debugMode  bool
)

// rootCmd represents the base command for the rentendash application.
// Running it without a subcommand renders the dashboard.
var rootCmd = &cobra.Command{
	Use:   "rentendash",
	Short: "Financial dashboard over OAuth-protected bank APIs",
	Long: `rentendash aggregates account, portfolio and transaction data from
OAuth-protected bank APIs (Commerzbank securities sandbox by default)
and renders a consolidated financial overview in the terminal.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
	RunE:         runDashboard,
}

// SetVersion sets the version for the root command. Called from the
// main package to inject the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "rentendash version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error
// type. A missing token record means authentication is required; other
// OAuth or TLS failures mean the flow itself failed.
func getExitCode(err error) int {
	var noRecord *oauth.ErrNoRecord
	if errors.As(err, &noRecord) {
		return ExitCodeAuthRequired
	}

	var oauthErr *oauth.OAuthError
	if errors.As(err, &oauthErr) {
		return ExitCodeAuthFailed
	}

	var tlsErr *oauth.TLSConfigError
	if errors.As(err, &tlsErr) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/rentendash/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newDashboardCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
