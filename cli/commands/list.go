package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashbridge/relay/rpc/methods"
	"github.com/hashbridge/relay/rpcclient"
)

func List(rpcClient rpcclient.Client) *cobra.Command {
	var orderID string

	var cmd = &cobra.Command{
		Use:   "list",
		Short: "List orders known to the relayer",
		Run: func(c *cobra.Command, args []string) {
			if orderID != "" {
				resp, err := rpcClient.GetOrder(methods.RequestOrder{OrderID: orderID})
				if err != nil {
					cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
				}
				printOrders(resp, true)
				return
			}

			resp, err := rpcClient.ListOrders()
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}
			printOrders(resp, false)
		},
	}

	cmd.Flags().StringVar(&orderID, "order-id", "", "Show only the order with this id")
	return cmd
}

func printOrders(resp json.RawMessage, single bool) {
	var views []methods.OrderView
	if single {
		var view methods.OrderView
		if err := json.Unmarshal(resp, &view); err != nil {
			cobra.CheckErr(fmt.Errorf("failed to unmarshal response: %w", err))
		}
		views = append(views, view)
	} else if err := json.Unmarshal(resp, &views); err != nil {
		cobra.CheckErr(fmt.Errorf("failed to unmarshal response: %w", err))
	}

	for _, view := range views {
		fmt.Printf("%s  %-20s  src=%s dst=%s", view.OrderID, view.Status, view.SourceEscrow, view.DestinationEscrow)
		if view.Error != "" {
			fmt.Printf("  error=%s", view.Error)
		}
		fmt.Println()
	}
}
