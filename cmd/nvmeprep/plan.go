package main

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/nvmeprep/internal/app"
	"github.com/felixgeelhaar/nvmeprep/internal/domain/config"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what nvmeprep would change",
	Long: `Plan checks every provisioning step against the host's current state
and shows which steps would run, without changing anything. It needs
no root privileges.`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewLoader().Load(configPath())
	if err != nil {
		return err
	}

	p := app.NewProvisioner(cfg,
		app.WithLogger(newLogger()),
		app.WithDryRun(true))

	report, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report)
	return nil
}
