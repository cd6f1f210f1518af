package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashbridge/relay/pkg/timelock"
	"github.com/hashbridge/relay/rpc/methods"
	"github.com/hashbridge/relay/rpcclient"
)

func Create(rpcClient rpcclient.Client) *cobra.Command {
	var (
		orderID            string
		maker              string
		taker              string
		sourceAsset        string
		destinationAsset   string
		makingAmount       string
		takingAmount       string
		safetyDeposit      string
		sourceChainID      uint64
		destinationChainID uint64
		hashlock           string
		offsets            []uint
		autoWithdraw       bool
	)

	var cmd = &cobra.Command{
		Use:   "create",
		Short: "Create a new swap order",
		Run: func(c *cobra.Command, args []string) {
			if len(offsets) != len(timelock.Stages()) {
				cobra.CheckErr(fmt.Errorf("expected %d timelock offsets, got %d", len(timelock.Stages()), len(offsets)))
			}
			schedule := timelock.Offsets{
				SrcWithdrawal:         uint32(offsets[0]),
				SrcPublicWithdrawal:   uint32(offsets[1]),
				SrcCancellation:       uint32(offsets[2]),
				SrcPublicCancellation: uint32(offsets[3]),
				DstWithdrawal:         uint32(offsets[4]),
				DstPublicWithdrawal:   uint32(offsets[5]),
				DstCancellation:       uint32(offsets[6]),
			}

			CreateOrder := methods.RequestCreate{
				OrderID:            orderID,
				Maker:              maker,
				Taker:              taker,
				SourceAsset:        sourceAsset,
				DestinationAsset:   destinationAsset,
				MakingAmount:       makingAmount,
				TakingAmount:       takingAmount,
				SafetyDeposit:      safetyDeposit,
				SourceChainID:      sourceChainID,
				DestinationChainID: destinationChainID,
				HashLock:           hashlock,
				Timelocks:          schedule,
				AutoWithdraw:       autoWithdraw,
			}

			resp, err := rpcClient.CreateOrder(CreateOrder)
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}

			var view methods.OrderView
			if err := json.Unmarshal(resp, &view); err != nil {
				cobra.CheckErr(fmt.Errorf("failed to unmarshal response: %w", err))
			}

			fmt.Printf("successfully created order %s with status %s\n", view.OrderID, view.Status)
		},
	}

	cmd.Flags().StringVar(&orderID, "order-id", "", "User should provide the order id (32 byte hex)")
	cmd.MarkFlagRequired("order-id")
	cmd.Flags().StringVar(&maker, "maker", "", "User should provide the maker address")
	cmd.MarkFlagRequired("maker")
	cmd.Flags().StringVar(&taker, "taker", "", "User should provide the taker address")
	cmd.MarkFlagRequired("taker")
	cmd.Flags().StringVar(&sourceAsset, "source-asset", "", "Asset locked on the source chain")
	cmd.Flags().StringVar(&destinationAsset, "destination-asset", "", "Asset locked on the destination chain")
	cmd.Flags().StringVar(&makingAmount, "making-amount", "", "User should provide the making amount")
	cmd.MarkFlagRequired("making-amount")
	cmd.Flags().StringVar(&takingAmount, "taking-amount", "", "User should provide the taking amount")
	cmd.MarkFlagRequired("taking-amount")
	cmd.Flags().StringVar(&safetyDeposit, "safety-deposit", "", "Safety deposit per escrow (default: 0)")
	cmd.Flags().Uint64Var(&sourceChainID, "source-chain", 0, "Source chain id")
	cmd.Flags().Uint64Var(&destinationChainID, "destination-chain", 0, "Destination chain id")
	cmd.Flags().StringVar(&hashlock, "hashlock", "", "User should provide the keccak256 hash of the secret")
	cmd.MarkFlagRequired("hashlock")
	cmd.Flags().UintSliceVar(&offsets, "timelocks", nil, "Seven stage offsets in seconds, packed order")
	cmd.MarkFlagRequired("timelocks")
	cmd.Flags().BoolVar(&autoWithdraw, "auto-withdraw", false, "Withdraw automatically once the secret is observed")
	return cmd
}
