package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashbridge/relay/rpc/methods"
	"github.com/hashbridge/relay/rpcclient"
)

func Deploy(rpcClient rpcclient.Client) *cobra.Command {
	var (
		orderID string
		side    string
	)

	var cmd = &cobra.Command{
		Use:   "deploy",
		Short: "Deploy one side's escrow for an order",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.Deploy(methods.RequestDeploy{
				OrderID: orderID,
				Side:    side,
			})
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
	cmd.Flags().StringVar(&side, "side", "", "allowed: \"source\", \"destination\"")
	cmd.MarkFlagRequired("side")
	return cmd
}
