package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"energy-desk/internal/app"
)

var (
	newsTopic   string
	newsDaysAgo int
	newsNotify  bool
)

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "Analyze recent headlines into validated market signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		if newsDaysAgo < 0 {
			return fmt.Errorf("--days-ago must not be negative")
		}
		return getApp().News(cmd.Context(), app.NewsOptions{
			Topic:   newsTopic,
			DaysAgo: newsDaysAgo,
			Notify:  newsNotify,
		})
	},
}

func init() {
	newsCmd.Flags().StringVar(&newsTopic, "topic", "", "Search topic (defaults to config)")
	newsCmd.Flags().IntVar(&newsDaysAgo, "days-ago", 0, "Analyze headlines from a single past day (0 = latest)")
	newsCmd.Flags().BoolVar(&newsNotify, "notify", false, "Send ALERT tier signals to the notifier")
}
