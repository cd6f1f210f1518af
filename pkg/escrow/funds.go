package escrow

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Balances is an in-process Ledger keeping a plain balance book. It backs the
// local development mode and the test suites; production deployments plug a
// chain-specific Ledger in instead.
type Balances struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	vault    *big.Int
}

func NewBalances() *Balances {
	return &Balances{
		balances: map[common.Address]*big.Int{},
		vault:    new(big.Int),
	}
}

// Credit funds an account so it can back an escrow deposit.
func (b *Balances) Credit(owner common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[owner] = new(big.Int).Add(b.balance(owner), amount)
}

// Balance returns the free balance of the account.
func (b *Balances) Balance(owner common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balance(owner))
}

// Locked returns the total value currently held by escrows.
func (b *Balances) Locked() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.vault)
}

func (b *Balances) LockFunds(ctx context.Context, owner common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	balance := b.balance(owner)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: %v has %v, needs %v", owner, balance, amount)
	}
	b.balances[owner] = new(big.Int).Sub(balance, amount)
	b.vault.Add(b.vault, amount)
	return nil
}

func (b *Balances) ReleaseFunds(ctx context.Context, recipient common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.vault.Cmp(amount) < 0 {
		return fmt.Errorf("vault underflow: holds %v, releasing %v", b.vault, amount)
	}
	b.vault.Sub(b.vault, amount)
	b.balances[recipient] = new(big.Int).Add(b.balance(recipient), amount)
	return nil
}

func (b *Balances) balance(owner common.Address) *big.Int {
	balance, ok := b.balances[owner]
	if !ok {
		return new(big.Int)
	}
	return balance
}
