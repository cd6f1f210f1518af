package escrow

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hashbridge/relay/pkg/swap"
	"github.com/hashbridge/relay/pkg/timelock"
)

// Side marks which half of a cross-chain order an escrow belongs to.
type Side int

const (
	Source Side = iota
	Destination
)

func (s Side) String() string {
	switch s {
	case Source:
		return "source"
	case Destination:
		return "destination"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Status is the mutable part of a record. Created is the only non-terminal
// state; a record transitions at most once, to Withdrawn or Cancelled.
type Status uint

const (
	Unknown Status = iota
	Created
	Withdrawn
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Withdrawn:
		return "withdrawn"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == Withdrawn || s == Cancelled
}

// Immutables are the swap parameters fixed at escrow creation. They are never
// modified afterwards; the ledger hands out copies only.
type Immutables struct {
	OrderID       common.Hash
	HashLock      swap.HashLock
	Maker         common.Address
	Taker         common.Address
	Asset         common.Address
	Amount        *big.Int
	SafetyDeposit *big.Int
	Timelocks     timelock.Schedule
}

// Validate rejects parameter sets that could never form a working escrow.
func (im Immutables) Validate() error {
	if im.OrderID == (common.Hash{}) {
		return fmt.Errorf("%w: zero order id", ErrValidation)
	}
	if im.HashLock == (swap.HashLock{}) {
		return fmt.Errorf("%w: zero hashlock", ErrValidation)
	}
	if im.Amount == nil || im.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if im.SafetyDeposit == nil || im.SafetyDeposit.Sign() < 0 {
		return fmt.Errorf("%w: negative safety deposit", ErrValidation)
	}
	return im.Timelocks.Offsets().Validate()
}

// Record is a single escrow on one ledger: the immutable parameters plus the
// small mutable tail tracked by the state machine.
type Record struct {
	Immutables

	Side       Side
	Status     Status
	DeployedAt time.Time

	// Secret is set once a withdrawal disclosed it, and read-only afterwards.
	Secret *swap.Secret
}

// Recipient is the party funds are released to on withdrawal: the taker on
// the source side, the maker on the destination side.
func (r Record) Recipient() common.Address {
	if r.Side == Source {
		return r.Taker
	}
	return r.Maker
}

// Depositor is the party whose funds are locked in the escrow and returned on
// cancellation: the maker on the source side, the taker on the destination.
func (r Record) Depositor() common.Address {
	if r.Side == Source {
		return r.Maker
	}
	return r.Taker
}

// withdrawalStage and friends map a record's side onto its schedule stages.
func (r Record) withdrawalStage() timelock.Stage {
	if r.Side == Source {
		return timelock.SrcWithdrawal
	}
	return timelock.DstWithdrawal
}

func (r Record) publicWithdrawalStage() timelock.Stage {
	if r.Side == Source {
		return timelock.SrcPublicWithdrawal
	}
	return timelock.DstPublicWithdrawal
}

func (r Record) cancellationStage() timelock.Stage {
	if r.Side == Source {
		return timelock.SrcCancellation
	}
	return timelock.DstCancellation
}

// publicCancellationStage returns the public cancellation gate. The
// destination side has no such stage, so cancellation there stays
// depositor-only for the life of the record.
func (r Record) publicCancellationStage() (timelock.Stage, bool) {
	if r.Side == Source {
		return timelock.SrcPublicCancellation, true
	}
	return 0, false
}

// Disclosure is one observed secret revelation, positioned so a scan can
// resume from a checkpoint.
type Disclosure struct {
	Secret   swap.Secret
	Position uint64
}
