package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	subEventType  string
	subWebhookURL string
)

var subscriptionCmd = &cobra.Command{
	Use:   "subscription",
	Short: "Manage webhook subscriptions",
}

var subscriptionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a webhook subscription for an event type",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, status, err := makeHTTPRequest("POST", "/webhooks/subscription", map[string]any{
			"event_type":  subEventType,
			"webhook_url": subWebhookURL,
		})
		if err != nil {
			return err
		}
		if status != 200 {
			fmt.Printf("request failed (%d):\n", status)
		}
		printJSON(body)
		return nil
	},
}

func init() {
	subscriptionCreateCmd.Flags().StringVar(&subEventType, "event-type", "", "event type to subscribe to (e.g. order.created)")
	subscriptionCreateCmd.Flags().StringVar(&subWebhookURL, "url", "", "absolute http(s) webhook URL")
	subscriptionCreateCmd.MarkFlagRequired("event-type")
	subscriptionCreateCmd.MarkFlagRequired("url")

	subscriptionCmd.AddCommand(subscriptionCreateCmd)
	rootCmd.AddCommand(subscriptionCmd)
}
