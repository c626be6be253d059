package cli

import (
	"github.com/spf13/cobra"

	"energy-desk/internal/app"
)

var (
	simulateFixture string
	simulateText    string
	simulateNotify  bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-signal",
	Short: "Push a fixture record through validation, risk tiering and alerting",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateSignal(cmd.Context(), app.SimulateOptions{
			FixturePath: simulateFixture,
			Text:        simulateText,
			Notify:      simulateNotify,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateFixture, "fixture", "", "JSON file holding the inference record (built-in sample when empty)")
	simulateCmd.Flags().StringVar(&simulateText, "text", "Simulated headline", "Headline text passed to the inference step")
	simulateCmd.Flags().BoolVar(&simulateNotify, "notify", false, "Send the signal to the configured notifier")
}
