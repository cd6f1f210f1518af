package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/hashbridge/relay/pkg/escrow"
	"github.com/hashbridge/relay/pkg/monitor"
	"github.com/hashbridge/relay/pkg/store"
	"github.com/hashbridge/relay/pkg/swap"
)

// defaultPollInterval is how often the background worker scans for funded
// orders that still need monitoring.
const defaultPollInterval = 5 * time.Second

// Start spawns the background worker that picks up funded orders with
// auto-withdraw enabled and drives them to completion. It is not blocking.
func (o *Orchestrator) Start() error {
	select {
	case <-o.quit:
		return fmt.Errorf("orchestrator already stopped")
	default:
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		var mu sync.Mutex
		watching := map[common.Hash]struct{}{}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for {
			for _, order := range o.Orders() {
				if order.Status != store.Funded || !order.AutoWithdraw {
					continue
				}
				mu.Lock()
				if _, ok := watching[order.OrderID]; ok {
					mu.Unlock()
					continue
				}
				watching[order.OrderID] = struct{}{}
				mu.Unlock()

				o.wg.Add(1)
				go func(orderID common.Hash) {
					defer o.wg.Done()
					// Dropping the entry lets a retried order be picked
					// up again on a later scan.
					defer func() {
						mu.Lock()
						delete(watching, orderID)
						mu.Unlock()
					}()
					if err := o.Execute(ctx, orderID); err != nil {
						o.logger.Error("execution failed",
							zap.String("order", orderID.Hex()), zap.Error(err))
					}
				}(order.OrderID)
			}

			select {
			case <-time.After(o.pollInterval):
			case <-o.quit:
				o.logger.Info("received quit channel signal")
				return
			}
		}
	}()
	return nil
}

// Stop gracefully shuts the orchestrator down, waiting for in-flight watches
// and executions to finish.
func (o *Orchestrator) Stop() {
	close(o.quit)
	o.wg.Wait()
	for _, watcher := range o.watchers {
		watcher.Wait()
	}
}

// Execute watches both ledgers for the order's secret and mirrors the first
// disclosure onto the side that has not released yet. If every watch budget
// runs out without a disclosure, the order is marked Failed with a monitor
// timeout; it stays queryable so an operator can extend monitoring or cancel
// once the gates open.
func (o *Orchestrator) Execute(ctx context.Context, orderID common.Hash) error {
	order, err := o.order(orderID)
	if err != nil {
		return err
	}
	if order.Secret != nil {
		return o.OnSecretObserved(ctx, orderID, *order.Secret)
	}
	// Another instance may have persisted the secret already.
	if stored, err := o.storage.Secret(order.HashLock.Hex()); err == nil && stored != "" {
		if secret, err := swap.SecretFromHex(stored); err == nil {
			return o.OnSecretObserved(ctx, orderID, secret)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan monitor.Result, 2)
	watches := 0
	for _, side := range []escrow.Side{escrow.Source, escrow.Destination} {
		watcher, ok := o.watchers[side]
		if !ok {
			continue
		}
		if record, ok := o.ledger(side).Record(orderID); !ok || record.Status.Terminal() {
			continue
		}
		watches++
		go func(watch <-chan monitor.Result) {
			if result, ok := <-watch; ok {
				results <- result
			}
		}(watcher.Watch(ctx, orderID, order.HashLock, o.budget))
	}
	if watches == 0 {
		return fmt.Errorf("%w: no escrow to watch", ErrOrderNotFound)
	}

	var lastErr error
	for i := 0; i < watches; i++ {
		select {
		case result := <-results:
			if result.Err == nil {
				// A disclosure on either ledger settles both sides.
				return o.OnSecretObserved(ctx, orderID, result.Secret)
			}
			lastErr = result.Err
		case <-ctx.Done():
			return ctx.Err()
		case <-o.quit:
			return nil
		}
	}

	if errors.Is(lastErr, monitor.ErrTimeout) {
		o.fail(orderID, fmt.Errorf("monitor timeout: %w", lastErr))
	}
	return lastErr
}
