package sim

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Rewarder is an in-memory staking contract. Staked pool shares are moved
// onto the rewarder's own share balance and tracked per account; incentive
// rewards accumulate in a separate reward token.
type Rewarder struct {
	mu          sync.Mutex
	addr        common.Address
	pool        *Pool
	rewardToken *Token
	staked      map[common.Address]*big.Int
	pending     map[common.Address]*big.Int

	withdrawErr error // forced failure for error-path tests
}

func NewRewarder(addr common.Address, pool *Pool, rewardToken *Token) *Rewarder {
	return &Rewarder{
		addr:        addr,
		pool:        pool,
		rewardToken: rewardToken,
		staked:      make(map[common.Address]*big.Int),
		pending:     make(map[common.Address]*big.Int),
	}
}

func (r *Rewarder) Address() common.Address { return r.addr }

func (r *Rewarder) StakingToken(_ context.Context) (common.Address, error) {
	return r.pool.Address(), nil
}

func (r *Rewarder) Stake(_ context.Context, account common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.pool.transferShares(account, r.addr, amount); err != nil {
		return fmt.Errorf("rewarder: stake: %w", err)
	}
	bal := r.entry(r.staked, account)
	bal.Add(bal, amount)
	return nil
}

func (r *Rewarder) Withdraw(_ context.Context, account common.Address, amount *big.Int, claim bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.withdrawErr != nil {
		return r.withdrawErr
	}
	bal := r.entry(r.staked, account)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("rewarder: withdraw of %s exceeds staked balance %s", amount, bal)
	}
	if err := r.pool.transferShares(r.addr, account, amount); err != nil {
		return fmt.Errorf("rewarder: withdraw: %w", err)
	}
	bal.Sub(bal, amount)
	if claim {
		r.payReward(account)
	}
	return nil
}

func (r *Rewarder) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.entry(r.staked, account)), nil
}

func (r *Rewarder) GetReward(_ context.Context, account common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payReward(account)
	return nil
}

// AddReward accrues pending incentive rewards for account (test control).
func (r *Rewarder) AddReward(account common.Address, amount *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.entry(r.pending, account)
	p.Add(p, amount)
}

// FailWithdrawals forces subsequent Withdraw calls to return err. Pass nil
// to restore normal behavior.
func (r *Rewarder) FailWithdrawals(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.withdrawErr = err
}

// payReward mints any pending reward tokens to account and clears them.
// Callers must hold r.mu.
func (r *Rewarder) payReward(account common.Address) {
	p := r.entry(r.pending, account)
	if p.Sign() == 0 {
		return
	}
	r.rewardToken.Mint(account, p)
	p.SetInt64(0)
}

// entry returns the live balance entry for account in m.
// Callers must hold r.mu.
func (r *Rewarder) entry(m map[common.Address]*big.Int, account common.Address) *big.Int {
	bal, ok := m[account]
	if !ok {
		bal = new(big.Int)
		m[account] = bal
	}
	return bal
}
