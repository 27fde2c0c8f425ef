package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check API health",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, status, err := makeHTTPRequest("GET", "/healthz", nil)
		if err != nil {
			return err
		}
		if status != 200 {
			fmt.Printf("unhealthy (%d):\n", status)
		}
		printJSON(body)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
