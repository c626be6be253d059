package cli

import (
	"github.com/spf13/cobra"

	"energy-desk/internal/app"
)

var statusLookback string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current volatility regime and market indicators",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Status(cmd.Context(), app.StatusOptions{Lookback: statusLookback})
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusLookback, "lookback", "3M", "Comparison window: 1M, 3M, 6M or 1Y")
}
