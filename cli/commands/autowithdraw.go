package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashbridge/relay/rpc/methods"
	"github.com/hashbridge/relay/rpcclient"
)

func AutoWithdraw(rpcClient rpcclient.Client) *cobra.Command {
	var (
		orderID string
		disable bool
	)

	var cmd = &cobra.Command{
		Use:   "autowithdraw",
		Short: "Toggle automatic withdrawal for an order",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.SetAutoWithdraw(methods.RequestAutoWithdraw{
				OrderID: orderID,
				Enabled: !disable,
			})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}
			fmt.Println(string(resp))
		},
	}

	cmd.Flags().StringVar(&orderID, "order-id", "", "User should provide the order id")
	cmd.MarkFlagRequired("order-id")
	cmd.Flags().BoolVar(&disable, "disable", false, "disable instead of enable")
	return cmd
}
