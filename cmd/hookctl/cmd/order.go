package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	orderCustomer string
	orderAmount   float64
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Create and list orders (order.created triggers webhooks)",
}

var orderCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an order and publish an order.created event",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, status, err := makeHTTPRequest("POST", "/orders", map[string]any{
			"customer_name": orderCustomer,
			"amount":        orderAmount,
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

var orderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, status, err := makeHTTPRequest("GET", "/orders", nil)
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
	orderCreateCmd.Flags().StringVar(&orderCustomer, "customer", "", "customer name")
	orderCreateCmd.Flags().Float64Var(&orderAmount, "amount", 0, "order amount (must be > 0)")
	orderCreateCmd.MarkFlagRequired("customer")
	orderCreateCmd.MarkFlagRequired("amount")

	orderCmd.AddCommand(orderCreateCmd)
	orderCmd.AddCommand(orderListCmd)
	rootCmd.AddCommand(orderCmd)
}
