package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashbridge/relay/rpcclient"
)

func Accounts(rpcClient rpcclient.Client) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "accounts",
		Short: "Show the operator account details",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.GetAccounts()
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}
			fmt.Println(string(resp))
		},
	}
	return cmd
}
