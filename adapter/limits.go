package adapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldstate/vault-adapter-go/events"
)

// AvailableWithdrawLimit returns the adapter's currently redeemable
// capacity: idle asset plus the staked position valued at the pool's live
// rate. It bounds what the adapter can free, not what any particular owner
// is entitled to; entitlement checks belong to the outer vault, so the owner
// argument is unused by the default policy. No slippage haircut is applied.
func (a *Adapter) AvailableWithdrawLimit(ctx context.Context, _ common.Address) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idle, err := a.asset.BalanceOf(ctx, a.self)
	if err != nil {
		return nil, fmt.Errorf("withdraw limit: idle balance: %w", err)
	}
	deployed, err := a.stakedValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("withdraw limit: %w", err)
	}
	return idle.Add(idle, deployed), nil
}

// AvailableDepositLimit returns the pool's own reported maximum acceptable
// deposit for this adapter; zero once the adapter is shut down. Deposits
// beyond it must be rejected by the outer vault before they reach
// DeployFunds.
func (a *Adapter) AvailableDepositLimit(ctx context.Context, _ common.Address) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.shutdown {
		return new(big.Int), nil
	}
	limit, err := a.pool.MaxDeposit(ctx, a.self)
	if err != nil {
		return nil, fmt.Errorf("deposit limit: %w", err)
	}
	return limit, nil
}

// Slippage returns the current tolerance in parts per hundred-thousand.
func (a *Adapter) Slippage() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slippage
}

// AdjustSlippage updates the slippage tolerance. Management only; values
// above MaxSlippage are rejected with no state change.
func (a *Adapter) AdjustSlippage(caller common.Address, slippage uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ops.isManagement(caller) {
		return ErrUnauthorized
	}
	if slippage > MaxSlippage {
		return ErrSlippageTooHigh
	}
	old := a.slippage
	a.slippage = slippage

	a.events.Emit(events.Event{
		Type:    events.TypeSlippageUpdated,
		Adapter: a.self,
		Asset:   a.asset.Address(),
		Data:    events.SlippageUpdated{Old: old, New: slippage},
	})
	a.logger.Info("slippage updated", "asset", a.asset.Address(), "old", old, "new", slippage)
	return nil
}
