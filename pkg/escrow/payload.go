package escrow

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hashbridge/relay/pkg/swap"
	"github.com/hashbridge/relay/pkg/timelock"
)

// PayloadVersion tags the escrow-creation payload schema. Decoding rejects
// any other version instead of guessing at field layout.
const PayloadVersion = 1

// Payload is the wire form of escrow-creation parameters exchanged with
// ledger collaborators. Fields are hex encoded the way EVM tooling expects.
type Payload struct {
	Version       int    `json:"version"`
	OrderID       string `json:"orderId"`
	HashLock      string `json:"hashlock"`
	Maker         string `json:"maker"`
	Taker         string `json:"taker"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	SafetyDeposit string `json:"safetyDeposit"`

	Timelocks timelock.Offsets `json:"timelocks"`
}

// EncodePayload serializes the immutables into the versioned wire schema.
func EncodePayload(im Immutables) ([]byte, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(Payload{
		Version:       PayloadVersion,
		OrderID:       im.OrderID.Hex(),
		HashLock:      im.HashLock.Hex(),
		Maker:         im.Maker.Hex(),
		Taker:         im.Taker.Hex(),
		Asset:         im.Asset.Hex(),
		Amount:        im.Amount.String(),
		SafetyDeposit: im.SafetyDeposit.String(),
		Timelocks:     im.Timelocks.Offsets(),
	})
}

// DecodePayload parses and fully validates a creation payload. Unknown
// versions and malformed fields are errors, never silently defaulted.
func DecodePayload(data []byte) (Immutables, error) {
	payload := Payload{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Immutables{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if payload.Version != PayloadVersion {
		return Immutables{}, fmt.Errorf("%w: unsupported payload version %v", ErrValidation, payload.Version)
	}

	orderID, err := swap.HashLockFromHex(payload.OrderID)
	if err != nil {
		return Immutables{}, fmt.Errorf("%w: order id: %v", ErrValidation, err)
	}
	lock, err := swap.HashLockFromHex(payload.HashLock)
	if err != nil {
		return Immutables{}, fmt.Errorf("%w: hashlock: %v", ErrValidation, err)
	}
	maker, err := parseAddress(payload.Maker)
	if err != nil {
		return Immutables{}, fmt.Errorf("%w: maker: %v", ErrValidation, err)
	}
	taker, err := parseAddress(payload.Taker)
	if err != nil {
		return Immutables{}, fmt.Errorf("%w: taker: %v", ErrValidation, err)
	}
	asset, err := parseAddress(payload.Asset)
	if err != nil {
		return Immutables{}, fmt.Errorf("%w: asset: %v", ErrValidation, err)
	}
	amount, ok := new(big.Int).SetString(payload.Amount, 10)
	if !ok {
		return Immutables{}, fmt.Errorf("%w: malformed amount %q", ErrValidation, payload.Amount)
	}
	deposit, ok := new(big.Int).SetString(payload.SafetyDeposit, 10)
	if !ok {
		return Immutables{}, fmt.Errorf("%w: malformed safety deposit %q", ErrValidation, payload.SafetyDeposit)
	}
	schedule, err := timelock.New(payload.Timelocks)
	if err != nil {
		return Immutables{}, err
	}

	im := Immutables{
		OrderID:       orderID,
		HashLock:      lock,
		Maker:         maker,
		Taker:         taker,
		Asset:         asset,
		Amount:        amount,
		SafetyDeposit: deposit,
		Timelocks:     schedule,
	}
	if err := im.Validate(); err != nil {
		return Immutables{}, err
	}
	return im, nil
}

func parseAddress(str string) (common.Address, error) {
	if !common.IsHexAddress(str) {
		return common.Address{}, fmt.Errorf("malformed address %q", str)
	}
	return common.HexToAddress(str), nil
}
