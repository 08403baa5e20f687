package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"rentendash/internal/oauth"
)

var loginGrant string

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the configured bank",
	Long: `Authenticate with the configured bank using OAuth.

By default the grant is selected from the available configuration:
the browser authorization-code flow when client credentials and TLS
material are present, the sandbox password grant when username and
password are set, and a simulated token otherwise. A specific grant
can be forced with --grant.

Unlike the dashboard, an explicitly requested grant does not degrade
to a simulated token on failure.

Examples:
  rentendash auth login                    # Use the grant selection policy
  rentendash auth login --grant code       # Browser authorization-code flow
  rentendash auth login --grant password   # Sandbox password grant
  rentendash auth login --grant simulate   # Mock token for development`,
	RunE: runAuthLogin,
}

func init() {
	authLoginCmd.Flags().StringVar(&loginGrant, "grant", "auto", "Grant to use: auto, code, password or simulate")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, mgr, err := setup()
	if err != nil {
		return err
	}
	bank := cfg.Bank

	grant := loginGrant
	if grant == "auto" {
		switch oauth.SelectGrant(bank, cfg.App) {
		case oauth.GrantAuthorizationCode:
			grant = "code"
		case oauth.GrantPassword:
			grant = "password"
		default:
			grant = "simulate"
		}
		authPrint("Selected grant: %s\n", grant)
	}

	switch grant {
	case "code":
		authPrint("Authenticating with %s via your browser...\n", bank.Name)

		var s *spinner.Spinner
		if !authQuiet {
			s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			s.Suffix = " Waiting for the OAuth callback..."
			s.Start()
		}
		_, err = mgr.AuthorizationCodeFlow(ctx, bank, cfg.App)
		if s != nil {
			s.Stop()
		}
	case "password":
		authPrint("Authenticating with %s via the password grant...\n", bank.Name)
		_, err = mgr.PasswordGrant(ctx, bank)
	case "simulate":
		_, err = mgr.Simulate(bank.Name)
	default:
		return fmt.Errorf("unknown grant %q (expected auto, code, password or simulate)", grant)
	}
	if err != nil {
		return err
	}

	authPrintln(text.FgGreen.Sprint("Authentication successful."))
	return nil
}
