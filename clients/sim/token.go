// Package sim provides in-memory implementations of the external collaborator
// interfaces: a fungible token ledger, an auto-compounding yield pool and a
// staking rewarder. They exist so the adapter and registry can be exercised
// end to end without a chain transport.
package sim

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Token is a minimal in-memory fungible token ledger.
type Token struct {
	mu       sync.Mutex
	addr     common.Address
	symbol   string
	balances map[common.Address]*big.Int
}

func NewToken(addr common.Address, symbol string) *Token {
	return &Token{
		addr:     addr,
		symbol:   symbol,
		balances: make(map[common.Address]*big.Int),
	}
}

func (t *Token) Address() common.Address { return t.addr }

func (t *Token) Symbol() string { return t.symbol }

func (t *Token) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(account)), nil
}

// Mint credits freshly created units to account.
func (t *Token) Mint(account common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance(account).Add(t.balance(account), amount)
}

// Burn destroys amount held by account.
func (t *Token) Burn(account common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal := t.balance(account)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("token %s: burn of %s exceeds balance %s", t.symbol, amount, bal)
	}
	bal.Sub(bal, amount)
	return nil
}

// Transfer moves amount from one account to another within the ledger.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fromBal := t.balance(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("token %s: transfer of %s exceeds balance %s of %s",
			t.symbol, amount, fromBal, from.Hex())
	}
	fromBal.Sub(fromBal, amount)
	toBal := t.balance(to)
	toBal.Add(toBal, amount)
	return nil
}

// balance returns the live (mutable) balance entry for account.
// Callers must hold t.mu.
func (t *Token) balance(account common.Address) *big.Int {
	bal, ok := t.balances[account]
	if !ok {
		bal = new(big.Int)
		t.balances[account] = bal
	}
	return bal
}
