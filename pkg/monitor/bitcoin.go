package monitor

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/hashbridge/relay/pkg/swap"
)

// maxBlocksPerPoll caps how far a single poll scans so one attempt cannot
// burn the whole RPC quota after a long gap.
const maxBlocksPerPoll = 144

// BitcoinSource extracts candidate secrets from HTLC spend witnesses. A
// spending witness pushes the 32-byte preimage, so every 32-byte witness item
// in a block is yielded as a candidate; the watcher verifies each against the
// hashlock before anything acts on it. Positions are block heights.
type BitcoinSource struct {
	client *rpcclient.Client
}

func NewBitcoinSource(client *rpcclient.Client) *BitcoinSource {
	return &BitcoinSource{client: client}
}

func (s *BitcoinSource) LogsForHashLock(ctx context.Context, lock swap.HashLock, fromCheckpoint uint64) ([]Disclosure, error) {
	best, err := s.client.GetBlockCount()
	if err != nil {
		return nil, err
	}

	disclosures := []Disclosure{}
	from := int64(fromCheckpoint) + 1
	to := best
	if to-from >= maxBlocksPerPoll {
		to = from + maxBlocksPerPoll - 1
	}

	for height := from; height <= to; height++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		blockHash, err := s.client.GetBlockHash(height)
		if err != nil {
			return nil, err
		}
		msgBlock, err := s.client.GetBlock(blockHash)
		if err != nil {
			return nil, err
		}

		block := btcutil.NewBlock(msgBlock)
		for _, tx := range block.Transactions() {
			for _, txIn := range tx.MsgTx().TxIn {
				for _, item := range txIn.Witness {
					if len(item) != swap.SecretSize {
						continue
					}
					secret := swap.Secret{}
					copy(secret[:], item)
					if !swap.Verify(secret, lock) {
						continue
					}
					disclosures = append(disclosures, Disclosure{
						Secret:   secret,
						Position: uint64(height),
					})
				}
			}
		}
	}
	return disclosures, nil
}
