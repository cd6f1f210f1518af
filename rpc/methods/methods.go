package methods

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/hashbridge/relay/pkg/escrow"
	"github.com/hashbridge/relay/pkg/orchestrator"
	"github.com/hashbridge/relay/pkg/store"
	"github.com/hashbridge/relay/pkg/swap"
	"github.com/hashbridge/relay/pkg/timelock"
	"github.com/hashbridge/relay/utils"
)

const queryTimeout = 30 * time.Second

type CoreConfig struct {
	Orchestrator *orchestrator.Orchestrator
	Storage      store.Store
	EnvConfig    utils.Config
	Logger       *zap.Logger
}

type Method interface {
	Name() string
	Query(cfg *CoreConfig, params json.RawMessage) (json.RawMessage, error)
}

type RequestCreate struct {
	OrderID            string           `json:"orderId" binding:"required"`
	Maker              string           `json:"maker" binding:"required"`
	Taker              string           `json:"taker" binding:"required"`
	SourceAsset        string           `json:"sourceAsset"`
	DestinationAsset   string           `json:"destinationAsset"`
	MakingAmount       string           `json:"makingAmount" binding:"required"`
	TakingAmount       string           `json:"takingAmount" binding:"required"`
	SafetyDeposit      string           `json:"safetyDeposit"`
	SourceChainID      uint64           `json:"sourceChainId"`
	DestinationChainID uint64           `json:"destinationChainId"`
	HashLock           string           `json:"hashlock" binding:"required"`
	Timelocks          timelock.Offsets `json:"timelocks"`
	AutoWithdraw       bool             `json:"autoWithdraw"`
}

type RequestOrder struct {
	OrderID string `json:"orderId" binding:"required"`
}

type RequestDeploy struct {
	OrderID string `json:"orderId" binding:"required"`
	Side    string `json:"side" binding:"required"`
}

type RequestWithdraw struct {
	OrderID string `json:"orderId" binding:"required"`
	Secret  string `json:"secret" binding:"required"`
}

type RequestAutoWithdraw struct {
	OrderID string `json:"orderId" binding:"required"`
	Enabled bool   `json:"enabled"`
}

// OrderView is the client-facing projection of an order and its escrows.
type OrderView struct {
	OrderID           string `json:"orderId"`
	HashLock          string `json:"hashlock"`
	Status            string `json:"status"`
	Secret            string `json:"secret,omitempty"`
	Error             string `json:"error,omitempty"`
	SourceEscrow      string `json:"sourceEscrow,omitempty"`
	DestinationEscrow string `json:"destinationEscrow,omitempty"`
}

func orderView(cfg *CoreConfig, order orchestrator.Order) OrderView {
	view := OrderView{
		OrderID:  order.OrderID.Hex(),
		HashLock: order.HashLock.Hex(),
		Status:   order.Status.String(),
		Error:    order.Error,
	}
	if order.Secret != nil {
		view.Secret = order.Secret.Hex()
	}
	if record, ok := cfg.Orchestrator.EscrowRecord(order.OrderID, escrow.Source); ok {
		view.SourceEscrow = record.Status.String()
	}
	if record, ok := cfg.Orchestrator.EscrowRecord(order.OrderID, escrow.Destination); ok {
		view.DestinationEscrow = record.Status.String()
	}
	return view
}

type createOrder struct{}

func CreateOrder() Method { return &createOrder{} }

func (m *createOrder) Name() string { return "createOrder" }

func (m *createOrder) Query(cfg *CoreConfig, params json.RawMessage) (json.RawMessage, error) {
	var req RequestCreate
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}

	orderID, err := swap.HashLockFromHex(req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order id: %w", err)
	}
	lock, err := swap.HashLockFromHex(req.HashLock)
	if err != nil {
		return nil, fmt.Errorf("hashlock: %w", err)
	}
	makingAmount, ok := new(big.Int).SetString(req.MakingAmount, 10)
	if !ok {
		return nil, fmt.Errorf("malformed making amount %q", req.MakingAmount)
	}
	takingAmount, ok := new(big.Int).SetString(req.TakingAmount, 10)
	if !ok {
		return nil, fmt.Errorf("malformed taking amount %q", req.TakingAmount)
	}
	deposit := new(big.Int)
	if req.SafetyDeposit != "" {
		if deposit, ok = new(big.Int).SetString(req.SafetyDeposit, 10); !ok {
			return nil, fmt.Errorf("malformed safety deposit %q", req.SafetyDeposit)
		}
	}

	order, err := cfg.Orchestrator.CreateOrder(orchestrator.CreateParams{
		OrderID:            orderID,
		Maker:              common.HexToAddress(req.Maker),
		Taker:              common.HexToAddress(req.Taker),
		SourceAsset:        common.HexToAddress(req.SourceAsset),
		DestinationAsset:   common.HexToAddress(req.DestinationAsset),
		MakingAmount:       makingAmount,
		TakingAmount:       takingAmount,
		SafetyDeposit:      deposit,
		SourceChainID:      req.SourceChainID,
		DestinationChainID: req.DestinationChainID,
		HashLock:           lock,
		Timelocks:          req.Timelocks,
		AutoWithdraw:       req.AutoWithdraw,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(orderView(cfg, order))
}

type deployEscrow struct{}

func DeployEscrow() Method { return &deployEscrow{} }

func (m *deployEscrow) Name() string { return "deploy" }

func (m *deployEscrow) Query(cfg *CoreConfig, params json.RawMessage) (json.RawMessage, error) {
	var req RequestDeploy
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	orderID, err := swap.HashLockFromHex(req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order id: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	switch req.Side {
	case escrow.Source.String():
		err = cfg.Orchestrator.DeploySource(ctx, orderID)
	case escrow.Destination.String():
		err = cfg.Orchestrator.DeployDestination(ctx, orderID)
	default:
		return nil, fmt.Errorf("unknown side %q", req.Side)
	}
	if err != nil {
		return nil, err
	}

	order, err := cfg.Orchestrator.Order(orderID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(orderView(cfg, order))
}

type withdraw struct{}

func Withdraw() Method { return &withdraw{} }

func (m *withdraw) Name() string { return "withdraw" }

func (m *withdraw) Query(cfg *CoreConfig, params json.RawMessage) (json.RawMessage, error) {
	var req RequestWithdraw
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	orderID, err := swap.HashLockFromHex(req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order id: %w", err)
	}
	secret, err := swap.SecretFromHex(req.Secret)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := cfg.Orchestrator.OnSecretObserved(ctx, orderID, secret); err != nil {
		return nil, err
	}
	order, err := cfg.Orchestrator.Order(orderID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(orderView(cfg, order))
}

type cancel struct{}

func Cancel() Method { return &cancel{} }

func (m *cancel) Name() string { return "cancel" }

func (m *cancel) Query(cfg *CoreConfig, params json.RawMessage) (json.RawMessage, error) {
	var req RequestOrder
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	orderID, err := swap.HashLockFromHex(req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order id: %w", err)
	}

	ctx, cancelCtx := context.WithTimeout(context.Background(), queryTimeout)
	defer cancelCtx()

	if err := cfg.Orchestrator.CancelOrder(ctx, orderID); err != nil {
		return nil, err
	}
	order, err := cfg.Orchestrator.Order(orderID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(orderView(cfg, order))
}

type retryOrder struct{}

func RetryOrder() Method { return &retryOrder{} }

func (m *retryOrder) Name() string { return "retry" }

func (m *retryOrder) Query(cfg *CoreConfig, params json.RawMessage) (json.RawMessage, error) {
	var req RequestOrder
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	orderID, err := swap.HashLockFromHex(req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order id: %w", err)
	}

	ctx, cancelCtx := context.WithTimeout(context.Background(), queryTimeout)
	defer cancelCtx()

	if err := cfg.Orchestrator.Retry(ctx, orderID); err != nil {
		return nil, err
	}
	order, err := cfg.Orchestrator.Order(orderID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(orderView(cfg, order))
}

type getOrder struct{}

func GetOrder() Method { return &getOrder{} }

func (m *getOrder) Name() string { return "getOrder" }

func (m *getOrder) Query(cfg *CoreConfig, params json.RawMessage) (json.RawMessage, error) {
	var req RequestOrder
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	orderID, err := swap.HashLockFromHex(req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order id: %w", err)
	}
	order, err := cfg.Orchestrator.Order(orderID)
	if errors.Is(err, orchestrator.ErrOrderNotFound) {
		// Rows from an earlier run may not be resident; serve them straight
		// from the store.
		row, rowErr := cfg.Storage.OrderByOrderID(orderID.Hex())
		if rowErr != nil {
			return nil, err
		}
		return json.Marshal(OrderView{
			OrderID:  row.OrderID,
			HashLock: row.SecretHash,
			Status:   row.Status.String(),
			Secret:   row.Secret,
			Error:    row.Error,
		})
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(orderView(cfg, order))
}

type listOrders struct{}

func ListOrders() Method { return &listOrders{} }

func (m *listOrders) Name() string { return "listOrders" }

func (m *listOrders) Query(cfg *CoreConfig, params json.RawMessage) (json.RawMessage, error) {
	orders := cfg.Orchestrator.Orders()
	views := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, orderView(cfg, order))
	}
	return json.Marshal(views)
}

type timelocks struct{}

func Timelocks() Method { return &timelocks{} }

func (m *timelocks) Name() string { return "timelocks" }

func (m *timelocks) Query(cfg *CoreConfig, params json.RawMessage) (json.RawMessage, error) {
	var req RequestOrder
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	orderID, err := swap.HashLockFromHex(req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order id: %w", err)
	}
	info, err := cfg.Orchestrator.TimelockInfo(orderID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(info)
}

type setAutoWithdraw struct{}

func SetAutoWithdraw() Method { return &setAutoWithdraw{} }

func (m *setAutoWithdraw) Name() string { return "setAutoWithdraw" }

func (m *setAutoWithdraw) Query(cfg *CoreConfig, params json.RawMessage) (json.RawMessage, error) {
	var req RequestAutoWithdraw
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	orderID, err := swap.HashLockFromHex(req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order id: %w", err)
	}
	if err := cfg.Orchestrator.SetAutoWithdraw(orderID, req.Enabled); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{"orderId": req.OrderID, "autoWithdraw": req.Enabled})
}

type accountInfo struct{}

func AccountInfo() Method { return &accountInfo{} }

func (m *accountInfo) Name() string { return "getAccountInfo" }

func (m *accountInfo) Query(cfg *CoreConfig, params json.RawMessage) (json.RawMessage, error) {
	addr, err := utils.OperatorAddress(cfg.EnvConfig.Mnemonic)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{
		"operator":           addr.Hex(),
		"sourceChainId":      cfg.EnvConfig.SourceChainID,
		"destinationChainId": cfg.EnvConfig.DestinationChainID,
	})
}
