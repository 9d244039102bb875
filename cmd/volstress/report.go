package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	volstress "github.com/volstress/volstress/core"
)

func newReportCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "report",
		Short:   "Regenerate reports from result archives",
		Args:    cobra.NoArgs,
		PreRunE: bindCommandFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := volstress.GenerateResultsReport(a.log, viper.GetString("results"))
			if err != nil {
				return err
			}
			if report.HasUnmetExpectation {
				return errUnmetExpectation
			}
			return nil
		},
	}
	cmd.Flags().String("results", "results", "directory with result archives")
	return cmd
}
