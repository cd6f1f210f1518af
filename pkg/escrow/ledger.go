package escrow

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/hashbridge/relay/pkg/swap"
)

// Ledger moves value on the underlying chain. Signing, fee payment and
// asset-specific transfer mechanics all live behind this boundary.
type Ledger interface {
	LockFunds(ctx context.Context, owner common.Address, amount *big.Int) error
	ReleaseFunds(ctx context.Context, recipient common.Address, amount *big.Int) error
}

// EscrowLedger owns every escrow record of one chain side and enforces the
// create/withdraw/cancel state machine. All transitions on a record run under
// the ledger lock, mirroring the serialized transaction model of the chain:
// concurrent calls against the same record are totally ordered and the first
// writer wins.
type EscrowLedger struct {
	side   Side
	funds  Ledger
	logger *zap.Logger

	mu          sync.Mutex
	records     map[common.Hash]*Record
	disclosures []Disclosure

	now func() time.Time
}

func NewEscrowLedger(side Side, funds Ledger, logger *zap.Logger) *EscrowLedger {
	return &EscrowLedger{
		side:    side,
		funds:   funds,
		logger:  logger.With(zap.String("ledger", side.String())),
		records: map[common.Hash]*Record{},
		now:     time.Now,
	}
}

func (l *EscrowLedger) Side() Side {
	return l.side
}

// WithClock overrides the ledger's time source.
func (l *EscrowLedger) WithClock(now func() time.Time) *EscrowLedger {
	l.now = now
	return l
}

// Create validates the parameters, locks amount+safetyDeposit from the
// depositor and stores the new record. A record is created exactly once per
// order id on this side.
func (l *EscrowLedger) Create(ctx context.Context, im Immutables) (Record, error) {
	if err := im.Validate(); err != nil {
		return Record{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[im.OrderID]; ok {
		return Record{}, fmt.Errorf("%w: order %v", ErrAlreadyExists, im.OrderID)
	}

	deployedAt := l.now()
	record := &Record{
		Immutables: im,
		Side:       l.side,
		Status:     Created,
		DeployedAt: deployedAt,
	}
	record.Timelocks = im.Timelocks.WithDeployedAt(uint32(deployedAt.Unix()))

	locked := new(big.Int).Add(im.Amount, im.SafetyDeposit)
	if err := l.funds.LockFunds(ctx, record.Depositor(), locked); err != nil {
		return Record{}, fmt.Errorf("lock funds: %w", err)
	}

	l.records[im.OrderID] = record
	l.logger.Info("escrow created",
		zap.String("order", im.OrderID.Hex()),
		zap.String("hashlock", im.HashLock.Hex()),
		zap.String("amount", im.Amount.String()))
	return *record, nil
}

// Withdraw releases the escrowed amount to the record's recipient once the
// secret checks out and the withdrawal gate is open. Before the public
// withdrawal stage only the recipient may call; afterwards anyone may relay
// the action and collect the safety deposit for doing so.
func (l *EscrowLedger) Withdraw(ctx context.Context, orderID common.Hash, secret swap.Secret, caller common.Address) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[orderID]
	if !ok {
		return Record{}, fmt.Errorf("%w: order %v", ErrNotFound, orderID)
	}
	if record.Status.Terminal() {
		return Record{}, fmt.Errorf("%w: status %v", ErrAlreadyFinalized, record.Status)
	}
	if !swap.Verify(secret, record.HashLock) {
		return Record{}, ErrInvalidSecret
	}

	now := l.now()
	if !record.Timelocks.Reached(record.withdrawalStage(), now) {
		return Record{}, fmt.Errorf("%w: %v opens at %v", ErrTimelockNotMet,
			record.withdrawalStage(), record.Timelocks.Get(record.withdrawalStage()))
	}
	if !record.Timelocks.Reached(record.publicWithdrawalStage(), now) && caller != record.Recipient() {
		return Record{}, fmt.Errorf("%w: only %v may withdraw before %v",
			ErrUnauthorized, record.Recipient(), record.publicWithdrawalStage())
	}

	if err := l.funds.ReleaseFunds(ctx, record.Recipient(), record.Amount); err != nil {
		return Record{}, fmt.Errorf("release funds: %w", err)
	}
	if record.SafetyDeposit.Sign() > 0 {
		if err := l.funds.ReleaseFunds(ctx, caller, record.SafetyDeposit); err != nil {
			return Record{}, fmt.Errorf("release safety deposit: %w", err)
		}
	}

	record.Status = Withdrawn
	disclosed := secret
	record.Secret = &disclosed
	l.disclosures = append(l.disclosures, Disclosure{
		Secret:   disclosed,
		Position: uint64(len(l.disclosures) + 1),
	})

	l.logger.Info("escrow withdrawn",
		zap.String("order", orderID.Hex()),
		zap.String("recipient", record.Recipient().Hex()))
	return *record, nil
}

// Cancel returns amount+safetyDeposit to the depositor once this side's
// cancellation gate is open. On the source side the action becomes
// permissionless after the public cancellation stage; the destination side
// has no public stage so only the depositor may ever cancel there.
func (l *EscrowLedger) Cancel(ctx context.Context, orderID common.Hash, caller common.Address) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[orderID]
	if !ok {
		return Record{}, fmt.Errorf("%w: order %v", ErrNotFound, orderID)
	}
	if record.Status.Terminal() {
		return Record{}, fmt.Errorf("%w: status %v", ErrAlreadyFinalized, record.Status)
	}

	now := l.now()
	if !record.Timelocks.Reached(record.cancellationStage(), now) {
		return Record{}, fmt.Errorf("%w: %v opens at %v", ErrTimelockNotMet,
			record.cancellationStage(), record.Timelocks.Get(record.cancellationStage()))
	}
	publicStage, hasPublic := record.publicCancellationStage()
	public := hasPublic && record.Timelocks.Reached(publicStage, now)
	if !public && caller != record.Depositor() {
		return Record{}, fmt.Errorf("%w: only %v may cancel", ErrUnauthorized, record.Depositor())
	}

	refund := new(big.Int).Add(record.Amount, record.SafetyDeposit)
	if err := l.funds.ReleaseFunds(ctx, record.Depositor(), refund); err != nil {
		return Record{}, fmt.Errorf("release funds: %w", err)
	}

	record.Status = Cancelled
	l.logger.Info("escrow cancelled",
		zap.String("order", orderID.Hex()),
		zap.String("depositor", record.Depositor().Hex()))
	return *record, nil
}

// Record returns a copy of the escrow for the order, if it exists.
func (l *EscrowLedger) Record(orderID common.Hash) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[orderID]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

// Disclosures returns every secret revealed on this ledger for the hashlock
// after the given checkpoint, oldest first. This is the query surface the
// counter-chain monitor polls.
func (l *EscrowLedger) Disclosures(lock swap.HashLock, fromCheckpoint uint64) []Disclosure {
	l.mu.Lock()
	defer l.mu.Unlock()

	found := []Disclosure{}
	for _, d := range l.disclosures {
		if d.Position <= fromCheckpoint {
			continue
		}
		if d.Secret.Hash() == lock {
			found = append(found, d)
		}
	}
	return found
}
