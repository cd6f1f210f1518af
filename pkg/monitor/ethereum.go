package monitor

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hashbridge/relay/pkg/swap"
)

// secretRevealedTopic is the event signature the escrow contracts emit when a
// withdrawal discloses the preimage: SecretRevealed(bytes32 hashlock, bytes32 secret).
var secretRevealedTopic = crypto.Keccak256Hash([]byte("SecretRevealed(bytes32,bytes32)"))

// EthereumSource reads secret disclosures from an EVM escrow contract's event
// log. Positions are block numbers.
type EthereumSource struct {
	client   *ethclient.Client
	contract common.Address
}

func NewEthereumSource(client *ethclient.Client, contract common.Address) *EthereumSource {
	return &EthereumSource{
		client:   client,
		contract: contract,
	}
}

func (s *EthereumSource) LogsForHashLock(ctx context.Context, lock swap.HashLock, fromCheckpoint uint64) ([]Disclosure, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromCheckpoint + 1),
		Addresses: []common.Address{s.contract},
		Topics: [][]common.Hash{
			{secretRevealedTopic},
			{lock},
		},
	}
	logs, err := s.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	disclosures := []Disclosure{}
	for _, log := range logs {
		if len(log.Data) != swap.SecretSize {
			continue
		}
		secret := swap.Secret{}
		copy(secret[:], log.Data)
		disclosures = append(disclosures, Disclosure{
			Secret:   secret,
			Position: log.BlockNumber,
		})
	}
	return disclosures, nil
}
