package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashbridge/relay/rpc/methods"
	"github.com/hashbridge/relay/rpcclient"
)

func Timelocks(rpcClient rpcclient.Client) *cobra.Command {
	var orderID string

	var cmd = &cobra.Command{
		Use:   "timelocks",
		Short: "Show the resolved timelock schedule of an order",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.Timelocks(methods.RequestOrder{OrderID: orderID})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}
			fmt.Println(string(resp))
		},
	}

	cmd.Flags().StringVar(&orderID, "order-id", "", "User should provide the order id")
	cmd.MarkFlagRequired("order-id")
	return cmd
}
