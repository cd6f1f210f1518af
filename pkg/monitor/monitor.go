package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/hashbridge/relay/pkg/swap"
)

// ErrTimeout is delivered once a watch exhausts its budget. Retrying costs
// external quota, so running out is always surfaced instead of looping.
var ErrTimeout = errors.New("watch budget exhausted")

// Disclosure is one secret revelation observed on the counter ledger,
// positioned so a restarted scan can resume past it.
type Disclosure struct {
	Secret   swap.Secret
	Position uint64
}

// Source is the counter ledger's query surface: every revelation for the
// hashlock after the checkpoint. Results are advisory until re-verified.
type Source interface {
	LogsForHashLock(ctx context.Context, lock swap.HashLock, fromCheckpoint uint64) ([]Disclosure, error)
}

// Budget bounds a watch. Attempts caps the number of polls; the interval
// doubles after each empty poll up to MaxInterval.
type Budget struct {
	Attempts    int
	Interval    time.Duration
	MaxInterval time.Duration
}

func DefaultBudget() Budget {
	return Budget{
		Attempts:    30,
		Interval:    2 * time.Second,
		MaxInterval: 30 * time.Second,
	}
}

// Result is the single outcome of a watch: a verified secret, or an error
// (ErrTimeout, a context error, or a checkpoint failure).
type Result struct {
	OrderID common.Hash
	Secret  swap.Secret
	Err     error
}

// Watcher polls a counter-ledger source for secret disclosures. Each Watch is
// a lazy, budgeted, cancellable task; checkpoints make it restartable. The
// chain label scopes the checkpoints, since positions persisted for another
// chain's feed mean nothing here.
type Watcher struct {
	chain       string
	source      Source
	checkpoints Checkpoints
	logger      *zap.Logger

	wg sync.WaitGroup
}

func NewWatcher(chain string, source Source, checkpoints Checkpoints, logger *zap.Logger) *Watcher {
	return &Watcher{
		chain:       chain,
		source:      source,
		checkpoints: checkpoints,
		logger:      logger.With(zap.String("service", "monitor"), zap.String("chain", chain)),
	}
}

// Watch starts polling for a disclosure matching the hashlock and returns a
// channel carrying exactly one Result. Cancelling the context abandons the
// watch; exhausting the budget delivers ErrTimeout.
func (w *Watcher) Watch(ctx context.Context, orderID common.Hash, lock swap.HashLock, budget Budget) <-chan Result {
	results := make(chan Result, 1)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(results)
		results <- w.poll(ctx, orderID, lock, budget)
	}()
	return results
}

// Wait blocks until every outstanding watch has finished.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

func (w *Watcher) poll(ctx context.Context, orderID common.Hash, lock swap.HashLock, budget Budget) Result {
	logger := w.logger.With(zap.String("order", orderID.Hex()), zap.String("hashlock", lock.Hex()))
	interval := budget.Interval

	for attempt := 0; attempt < budget.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return Result{OrderID: orderID, Err: ctx.Err()}
			}
			interval *= 2
			if interval > budget.MaxInterval {
				interval = budget.MaxInterval
			}
		}

		checkpoint, err := w.checkpoints.Checkpoint(ctx, w.chain, lock)
		if err != nil {
			return Result{OrderID: orderID, Err: err}
		}

		disclosures, err := w.source.LogsForHashLock(ctx, lock, checkpoint)
		if err != nil {
			logger.Error("poll failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		for _, disclosure := range disclosures {
			if disclosure.Position > checkpoint {
				checkpoint = disclosure.Position
			}
			// The remote ledger is advisory. Only a locally re-verified
			// secret is ever acted on.
			if !swap.Verify(disclosure.Secret, lock) {
				logger.Warn("disclosed secret does not match hashlock",
					zap.Uint64("position", disclosure.Position))
				continue
			}
			if err := w.checkpoints.PutCheckpoint(ctx, w.chain, lock, disclosure.Position); err != nil {
				logger.Error("failed storing checkpoint", zap.Error(err))
			}
			logger.Info("secret disclosed", zap.Uint64("position", disclosure.Position))
			return Result{OrderID: orderID, Secret: disclosure.Secret}
		}

		if err := w.checkpoints.PutCheckpoint(ctx, w.chain, lock, checkpoint); err != nil {
			logger.Error("failed storing checkpoint", zap.Error(err))
		}
	}

	return Result{OrderID: orderID, Err: ErrTimeout}
}
