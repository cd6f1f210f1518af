package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/hashbridge/relay/pkg/alert"
	"github.com/hashbridge/relay/pkg/escrow"
	"github.com/hashbridge/relay/pkg/monitor"
	"github.com/hashbridge/relay/pkg/store"
	"github.com/hashbridge/relay/pkg/swap"
	"github.com/hashbridge/relay/pkg/timelock"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderExists      = errors.New("order already exists")
	ErrChainMismatch    = errors.New("source and destination chain must differ")
	ErrDeploymentFailed = errors.New("escrow deployment failed")
	ErrSecretKnown      = errors.New("verified secret known, cancellation refused")
	ErrCancelNotReady   = errors.New("cancellation gates not reached")
)

// CreateParams are the client-submitted swap parameters.
type CreateParams struct {
	OrderID            common.Hash
	Maker              common.Address
	Taker              common.Address
	SourceAsset        common.Address
	DestinationAsset   common.Address
	MakingAmount       *big.Int
	TakingAmount       *big.Int
	SafetyDeposit      *big.Int
	SourceChainID      uint64
	DestinationChainID uint64
	HashLock           swap.HashLock
	Timelocks          timelock.Offsets
	AutoWithdraw       bool
}

// Order is the orchestrator-owned view of one cross-chain swap. It references
// the two escrow records but never owns them; the ledgers do.
type Order struct {
	CreateParams

	Schedule timelock.Schedule
	Status   store.Status
	Secret   *swap.Secret
	Error    string
}

// Orchestrator coordinates the two mirrored escrows of each order: it deploys
// them, watches for secret disclosure and drives the mirrored withdraw or the
// paired cancellation. Every action it issues is redundant-call-safe; the
// ledgers decide who the first writer was.
type Orchestrator struct {
	source      *escrow.EscrowLedger
	destination *escrow.EscrowLedger
	watchers    map[escrow.Side]*monitor.Watcher
	budget      monitor.Budget
	storage     store.Store
	alerts      alert.Notifier
	logger      *zap.Logger

	mu     sync.RWMutex
	orders map[common.Hash]*Order

	quit         chan struct{}
	wg           *sync.WaitGroup
	now          func() time.Time
	pollInterval time.Duration
}

// New wires an orchestrator over the two escrow ledgers. The watchers map
// holds, per side, the watcher serving that side's escrows, which must
// observe the counter ledger: the secret unlocking a source escrow is
// revealed by the withdrawal on the destination chain, and vice versa.
func New(
	source *escrow.EscrowLedger,
	destination *escrow.EscrowLedger,
	watchers map[escrow.Side]*monitor.Watcher,
	budget monitor.Budget,
	storage store.Store,
	alerts alert.Notifier,
	logger *zap.Logger,
) *Orchestrator {
	if alerts == nil {
		alerts = alert.NewNoop()
	}
	return &Orchestrator{
		source:      source,
		destination: destination,
		watchers:    watchers,
		budget:      budget,
		storage:     storage,
		alerts:      alerts,
		logger:      logger.With(zap.String("service", "orchestrator")),
		orders:      map[common.Hash]*Order{},
		quit:        make(chan struct{}),
		wg:          new(sync.WaitGroup),
		now:         time.Now,

		pollInterval: defaultPollInterval,
	}
}

// WithClock overrides the orchestrator's time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// WithPollInterval overrides how often the background worker rescans for
// orders to drive.
func (o *Orchestrator) WithPollInterval(interval time.Duration) *Orchestrator {
	o.pollInterval = interval
	return o
}

// Recover reloads persisted orders into memory so a restarted daemon keeps
// serving them. Escrow state is re-read from the ledgers on demand; only the
// order book itself needs rehydrating.
func (o *Orchestrator) Recover() error {
	rows, err := o.storage.Orders()
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	recovered := 0
	for _, row := range rows {
		params := CreateParams{}
		if err := json.Unmarshal([]byte(row.Params), &params); err != nil {
			o.logger.Warn("skipping order with malformed stored parameters",
				zap.String("order", row.OrderID), zap.Error(err))
			continue
		}
		if _, ok := o.orders[params.OrderID]; ok {
			continue
		}
		schedule, err := timelock.New(params.Timelocks)
		if err != nil {
			o.logger.Warn("skipping order with malformed stored schedule",
				zap.String("order", row.OrderID), zap.Error(err))
			continue
		}

		order := &Order{
			CreateParams: params,
			Schedule:     schedule,
			Status:       row.Status,
			Error:        row.Error,
		}
		if row.Secret != "" {
			if secret, err := swap.SecretFromHex(row.Secret); err == nil {
				order.Secret = &secret
			}
		}
		o.orders[params.OrderID] = order
		recovered++
	}

	o.logger.Info("orders recovered", zap.Int("count", recovered))
	return nil
}

// CreateOrder validates the parameters and registers the order as Pending.
func (o *Orchestrator) CreateOrder(params CreateParams) (Order, error) {
	if params.OrderID == (common.Hash{}) {
		return Order{}, fmt.Errorf("%w: zero order id", escrow.ErrValidation)
	}
	if params.HashLock == (swap.HashLock{}) {
		return Order{}, fmt.Errorf("%w: zero hashlock", escrow.ErrValidation)
	}
	if params.MakingAmount == nil || params.MakingAmount.Sign() <= 0 {
		return Order{}, fmt.Errorf("%w: making amount must be positive", escrow.ErrValidation)
	}
	if params.TakingAmount == nil || params.TakingAmount.Sign() <= 0 {
		return Order{}, fmt.Errorf("%w: taking amount must be positive", escrow.ErrValidation)
	}
	if params.SafetyDeposit == nil {
		params.SafetyDeposit = new(big.Int)
	}
	if params.SourceChainID == params.DestinationChainID {
		return Order{}, ErrChainMismatch
	}
	schedule, err := timelock.New(params.Timelocks)
	if err != nil {
		return Order{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.orders[params.OrderID]; ok {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderExists, params.OrderID)
	}
	// A row left behind by an earlier run still owns this hashlock.
	if status, err := o.storage.Status(params.HashLock.Hex()); err == nil && status != store.Unknown {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderExists, params.OrderID)
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return Order{}, err
	}

	order := &Order{
		CreateParams: params,
		Schedule:     schedule,
		Status:       store.Pending,
	}
	if err := o.storage.PutOrder(params.OrderID.Hex(), params.HashLock.Hex(), string(encoded)); err != nil {
		return Order{}, err
	}
	o.orders[params.OrderID] = order

	o.logger.Info("order created",
		zap.String("order", params.OrderID.Hex()),
		zap.String("hashlock", params.HashLock.Hex()))
	return *order, nil
}

// DeploySource creates the source-side escrow. A collaborator failure moves
// the order to Failed without touching the destination side.
func (o *Orchestrator) DeploySource(ctx context.Context, orderID common.Hash) error {
	return o.deploy(ctx, orderID, escrow.Source)
}

// DeployDestination creates the destination-side escrow. Sides may deploy in
// either order and fail independently; the other side is never rolled back.
func (o *Orchestrator) DeployDestination(ctx context.Context, orderID common.Hash) error {
	return o.deploy(ctx, orderID, escrow.Destination)
}

func (o *Orchestrator) deploy(ctx context.Context, orderID common.Hash, side escrow.Side) error {
	order, err := o.order(orderID)
	if err != nil {
		return err
	}

	ledger := o.ledger(side)
	if _, ok := ledger.Record(orderID); ok {
		// Another orchestrator instance already deployed this side.
		o.advanceDeployed(orderID)
		return nil
	}

	_, err = ledger.Create(ctx, o.immutables(order, side))
	if errors.Is(err, escrow.ErrAlreadyExists) {
		o.advanceDeployed(orderID)
		return nil
	}
	if err != nil {
		o.fail(orderID, fmt.Errorf("%w: %v side: %v", ErrDeploymentFailed, side, err))
		return fmt.Errorf("%w: %v", ErrDeploymentFailed, err)
	}

	o.advanceDeployed(orderID)
	return nil
}

// OnSecretObserved verifies the disclosed secret and withdraws whichever side
// has not yet reached Withdrawn. Invoking it repeatedly with the same secret
// is a no-op once both sides are finalized.
func (o *Orchestrator) OnSecretObserved(ctx context.Context, orderID common.Hash, secret swap.Secret) error {
	order, err := o.order(orderID)
	if err != nil {
		return err
	}
	if !swap.Verify(secret, order.HashLock) {
		return escrow.ErrInvalidSecret
	}

	o.saveSecret(orderID, secret)

	withdrawn := 0
	for _, side := range []escrow.Side{escrow.Source, escrow.Destination} {
		ledger := o.ledger(side)
		record, ok := ledger.Record(orderID)
		if !ok {
			continue
		}
		if record.Status == escrow.Withdrawn {
			withdrawn++
			continue
		}

		record, err := ledger.Withdraw(ctx, orderID, secret, record.Recipient())
		switch {
		case err == nil:
			withdrawn++
		case errors.Is(err, escrow.ErrAlreadyFinalized):
			// First writer won on the ledger; nothing left to do here.
			if current, ok := ledger.Record(orderID); ok && current.Status == escrow.Withdrawn {
				withdrawn++
			}
		default:
			return fmt.Errorf("withdraw %v side: %w", side, err)
		}
	}

	if withdrawn == 2 {
		o.setStatus(orderID, store.Executed, nil)
	}
	return nil
}

// CancelOrder cancels both escrows once both cancellation gates are open and
// no verified secret was observed. Withdrawal always takes precedence: a
// known-valid secret makes cancellation refuse outright. Every gate of a
// still-open escrow must be reached before either ledger is touched, so a
// half-cancelled order can never be left behind. The first successful ledger
// cancellation on either side is sufficient for the order to become
// Cancelled.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID common.Hash) error {
	order, err := o.order(orderID)
	if err != nil {
		return err
	}
	if order.Secret != nil && swap.Verify(*order.Secret, order.HashLock) {
		return ErrSecretKnown
	}

	now := o.now()
	cancelled := 0
	open := []escrow.Side{}
	for _, side := range []escrow.Side{escrow.Source, escrow.Destination} {
		record, ok := o.ledger(side).Record(orderID)
		if !ok {
			continue
		}
		if record.Status == escrow.Cancelled {
			cancelled++
			continue
		}
		if record.Status != escrow.Created {
			continue
		}
		stage := timelock.SrcCancellation
		if side == escrow.Destination {
			stage = timelock.DstCancellation
		}
		if !record.Timelocks.Reached(stage, now) {
			return fmt.Errorf("%w: %v opens at %v", ErrCancelNotReady, stage, record.Timelocks.Get(stage))
		}
		open = append(open, side)
	}
	if cancelled == 0 && len(open) == 0 {
		return fmt.Errorf("%w: no open escrow to cancel", ErrOrderNotFound)
	}

	for _, side := range open {
		ledger := o.ledger(side)
		record, ok := ledger.Record(orderID)
		if !ok {
			continue
		}

		_, err := ledger.Cancel(ctx, orderID, record.Depositor())
		switch {
		case err == nil:
			cancelled++
		case errors.Is(err, escrow.ErrAlreadyFinalized):
			if current, ok := ledger.Record(orderID); ok && current.Status == escrow.Cancelled {
				cancelled++
			}
		default:
			return fmt.Errorf("cancel %v side: %w", side, err)
		}
	}

	if cancelled > 0 {
		o.setStatus(orderID, store.Cancelled, nil)
		return nil
	}
	return fmt.Errorf("cancellation did not finalize any side")
}

// Retry re-attempts the deployments of a Failed order. The side that already
// deployed stays locked and is simply skipped.
func (o *Orchestrator) Retry(ctx context.Context, orderID common.Hash) error {
	order, err := o.order(orderID)
	if err != nil {
		return err
	}
	if order.Status != store.Failed {
		return fmt.Errorf("order %v is %v, only failed orders can be retried", orderID, order.Status)
	}

	o.setStatus(orderID, store.Pending, nil)
	o.advanceDeployed(orderID)
	for _, side := range []escrow.Side{escrow.Source, escrow.Destination} {
		if _, ok := o.ledger(side).Record(orderID); ok {
			continue
		}
		if err := o.deploy(ctx, orderID, side); err != nil {
			return err
		}
	}
	return nil
}

// SetAutoWithdraw toggles whether the background worker drives this order's
// monitoring and mirrored withdrawal.
func (o *Orchestrator) SetAutoWithdraw(orderID common.Hash, enabled bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %v", ErrOrderNotFound, orderID)
	}
	order.AutoWithdraw = enabled
	return nil
}

// Order returns a copy of the order.
func (o *Orchestrator) Order(orderID common.Hash) (Order, error) {
	return o.order(orderID)
}

// Orders returns a copy of every registered order.
func (o *Orchestrator) Orders() []Order {
	o.mu.RLock()
	defer o.mu.RUnlock()
	orders := make([]Order, 0, len(o.orders))
	for _, order := range o.orders {
		orders = append(orders, *order)
	}
	return orders
}

// EscrowRecord returns the escrow of one side of the order, if deployed.
func (o *Orchestrator) EscrowRecord(orderID common.Hash, side escrow.Side) (escrow.Record, bool) {
	return o.ledger(side).Record(orderID)
}

// StageInfo describes one time gate of a deployed escrow.
type StageInfo struct {
	Stage   string `json:"stage"`
	OpensAt uint64 `json:"opensAt"`
	Reached bool   `json:"reached"`
}

// TimelockInfo resolves every stage of the order's deployed escrows against
// the current time. Source stages come from the source record's schedule,
// destination stages from the destination record's.
func (o *Orchestrator) TimelockInfo(orderID common.Hash) ([]StageInfo, error) {
	if _, err := o.order(orderID); err != nil {
		return nil, err
	}

	now := o.now()
	info := []StageInfo{}
	for _, stage := range timelock.Stages() {
		side := escrow.Source
		if stage >= timelock.DstWithdrawal {
			side = escrow.Destination
		}
		record, ok := o.ledger(side).Record(orderID)
		if !ok {
			continue
		}
		info = append(info, StageInfo{
			Stage:   stage.String(),
			OpensAt: record.Timelocks.Get(stage),
			Reached: record.Timelocks.Reached(stage, now),
		})
	}
	return info, nil
}

func (o *Orchestrator) ledger(side escrow.Side) *escrow.EscrowLedger {
	if side == escrow.Source {
		return o.source
	}
	return o.destination
}

func (o *Orchestrator) immutables(order Order, side escrow.Side) escrow.Immutables {
	amount, asset := order.MakingAmount, order.SourceAsset
	if side == escrow.Destination {
		amount, asset = order.TakingAmount, order.DestinationAsset
	}
	return escrow.Immutables{
		OrderID:       order.OrderID,
		HashLock:      order.HashLock,
		Maker:         order.Maker,
		Taker:         order.Taker,
		Asset:         asset,
		Amount:        amount,
		SafetyDeposit: order.SafetyDeposit,
		Timelocks:     order.Schedule,
	}
}

func (o *Orchestrator) order(orderID common.Hash) (Order, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	order, ok := o.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderNotFound, orderID)
	}
	return *order, nil
}

// advanceDeployed recomputes the deployment progress of the order from what
// actually exists on the ledgers, which is the only source of truth when
// several orchestrator instances race.
func (o *Orchestrator) advanceDeployed(orderID common.Hash) {
	_, srcDeployed := o.source.Record(orderID)
	_, dstDeployed := o.destination.Record(orderID)

	switch {
	case srcDeployed && dstDeployed:
		o.setStatus(orderID, store.Funded, nil)
	case srcDeployed:
		o.setStatus(orderID, store.SourceDeployed, nil)
	case dstDeployed:
		o.setStatus(orderID, store.DestinationDeployed, nil)
	}
}

func (o *Orchestrator) fail(orderID common.Hash, reason error) {
	o.setStatus(orderID, store.Failed, reason)
	if err := o.alerts.Notify(fmt.Sprintf("order %v failed: %v", orderID.Hex(), reason)); err != nil {
		o.logger.Error("failed sending alert", zap.Error(err))
	}
}

func (o *Orchestrator) setStatus(orderID common.Hash, status store.Status, reason error) {
	o.mu.Lock()
	order, ok := o.orders[orderID]
	if !ok {
		o.mu.Unlock()
		return
	}
	if order.Status.Terminal() && status != order.Status {
		o.mu.Unlock()
		return
	}
	order.Status = status
	if reason != nil {
		order.Error = reason.Error()
	} else {
		order.Error = ""
	}
	secretHash := order.HashLock.Hex()
	o.mu.Unlock()

	if err := o.storage.UpdateOrderStatus(secretHash, status, reason); err != nil {
		o.logger.Error("failed persisting order status", zap.Error(err))
	}
}

func (o *Orchestrator) saveSecret(orderID common.Hash, secret swap.Secret) {
	o.mu.Lock()
	order, ok := o.orders[orderID]
	if !ok || order.Secret != nil {
		o.mu.Unlock()
		return
	}
	disclosed := secret
	order.Secret = &disclosed
	secretHash := order.HashLock.Hex()
	o.mu.Unlock()

	if err := o.storage.PutSecret(secretHash, secret.Hex()); err != nil {
		o.logger.Error("failed persisting secret", zap.Error(err))
	}
}
