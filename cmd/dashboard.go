package cmd

import (
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"rentendash/internal/aggregator"
	"rentendash/internal/bank"
	"rentendash/internal/dashboard"
)

// newDashboardCmd creates the explicit dashboard command. The root
// command runs the same logic when invoked without a subcommand.
func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Render the financial dashboard",
		Long: `Authenticate against the configured banks, retrieve accounts,
portfolios and recent transactions, and render a consolidated
financial overview. Banks that cannot be reached degrade to mock
data so the dashboard always renders.`,
		RunE: runDashboard,
	}
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, mgr, err := setup()
	if err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Connecting to banks..."
	s.Start()

	connector := bank.NewConnector(mgr, cfg.Banks(), cfg.App)
	accounts := connector.ConnectAll(ctx)
	s.Stop()

	summary := aggregator.New().Aggregate(accounts)
	dashboard.New(true).Show(summary)
	return nil
}
