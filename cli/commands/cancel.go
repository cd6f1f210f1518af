package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashbridge/relay/rpc/methods"
	"github.com/hashbridge/relay/rpcclient"
)

func Cancel(rpcClient rpcclient.Client) *cobra.Command {
	var orderID string

	var cmd = &cobra.Command{
		Use:   "cancel",
		Short: "Cancel an order and refund its escrows",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.Cancel(methods.RequestOrder{OrderID: orderID})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}

			var view methods.OrderView
			if err := json.Unmarshal(resp, &view); err != nil {
				cobra.CheckErr(fmt.Errorf("failed to unmarshal response: %w", err))
			}

			fmt.Printf("order %s is now %s\n", view.OrderID, view.Status)
		},
	}

	cmd.Flags().StringVar(&orderID, "order-id", "", "User should provide the order id")
	cmd.MarkFlagRequired("order-id")
	return cmd
}
