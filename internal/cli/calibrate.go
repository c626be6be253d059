package cli

import (
	"github.com/spf13/cobra"

	"energy-desk/internal/app"
)

var calibrateDryRun bool

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Recalibrate regime thresholds from price history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Calibrate(cmd.Context(), app.CalibrateOptions{DryRun: calibrateDryRun})
	},
}

func init() {
	calibrateCmd.Flags().BoolVar(&calibrateDryRun, "dry-run", false, "Print thresholds without saving them")
}
