package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashbridge/relay/rpc/methods"
	"github.com/hashbridge/relay/rpcclient"
)

func Withdraw(rpcClient rpcclient.Client) *cobra.Command {
	var (
		orderID string
		secret  string
	)

	var cmd = &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw both escrows of an order with the secret",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.Withdraw(methods.RequestWithdraw{
				OrderID: orderID,
				Secret:  secret,
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
	cmd.Flags().StringVar(&secret, "secret", "", "User should provide the 32 byte secret (hex)")
	cmd.MarkFlagRequired("secret")
	return cmd
}
