package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/nvmeprep/internal/app"
	"github.com/felixgeelhaar/nvmeprep/internal/domain/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the host without changing it",
	Long: `Doctor probes the host for everything provisioning depends on: kernel,
privileges, package manager, IOMMU state, hugepage support, NVMe
controllers and the framework source tree.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewLoader().Load(configPath())
	if err != nil {
		return err
	}

	findings := app.NewDoctor(cfg).Diagnose()
	out := cmd.OutOrStdout()
	printFindings(out, findings)

	if app.Healthy(findings) {
		fmt.Fprintln(out, "\nHost looks ready for provisioning.")
	} else {
		fmt.Fprintln(out, "\nSome probes failed; provisioning may not succeed.")
		exitCode = 1
	}
	return nil
}
