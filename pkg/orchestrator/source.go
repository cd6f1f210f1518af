package orchestrator

import (
	"context"

	"github.com/hashbridge/relay/pkg/escrow"
	"github.com/hashbridge/relay/pkg/monitor"
	"github.com/hashbridge/relay/pkg/swap"
)

// ledgerSource exposes an in-process EscrowLedger's disclosure log through
// the monitor's Source interface, so the same watcher machinery serves both
// remote chains and local ledgers.
type ledgerSource struct {
	ledger *escrow.EscrowLedger
}

// NewLedgerSource adapts an escrow ledger into a counter-chain monitor source.
func NewLedgerSource(ledger *escrow.EscrowLedger) monitor.Source {
	return ledgerSource{ledger: ledger}
}

func (s ledgerSource) LogsForHashLock(ctx context.Context, lock swap.HashLock, fromCheckpoint uint64) ([]monitor.Disclosure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found := s.ledger.Disclosures(lock, fromCheckpoint)
	disclosures := make([]monitor.Disclosure, 0, len(found))
	for _, d := range found {
		disclosures = append(disclosures, monitor.Disclosure{
			Secret:   d.Secret,
			Position: d.Position,
		})
	}
	return disclosures, nil
}
