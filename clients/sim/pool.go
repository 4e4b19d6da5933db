package sim

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// maxUint256 is returned by MaxDeposit when no cap is configured.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Pool is an in-memory auto-compounding pool. The pool is its own receipt
// token: deposited assets are held on the underlying token ledger at the
// pool's address, and shares live on an internal ledger keyed by account.
//
// Share price is totalAssets/totalShares. Accrue simulates compounded yield
// by raising totalAssets without minting shares.
type Pool struct {
	mu          sync.Mutex
	addr        common.Address
	symbol      string
	asset       *Token
	shares      map[common.Address]*big.Int
	totalShares *big.Int
	totalAssets *big.Int
	depositCap  *big.Int // nil means uncapped

	depositErr error // forced failure for error-path tests
}

func NewPool(addr common.Address, symbol string, asset *Token) *Pool {
	return &Pool{
		addr:        addr,
		symbol:      symbol,
		asset:       asset,
		shares:      make(map[common.Address]*big.Int),
		totalShares: new(big.Int),
		totalAssets: new(big.Int),
	}
}

func (p *Pool) Address() common.Address { return p.addr }

func (p *Pool) Asset(_ context.Context) (common.Address, error) {
	return p.asset.Address(), nil
}

func (p *Pool) Symbol(_ context.Context) (string, error) {
	return p.symbol, nil
}

func (p *Pool) ConvertToShares(_ context.Context, assets *big.Int) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toShares(assets), nil
}

func (p *Pool) ConvertToAssets(_ context.Context, shares *big.Int) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toAssets(shares), nil
}

// Deposit pulls assets from receiver's token balance into the pool and mints
// shares to receiver at the current rate.
func (p *Pool) Deposit(_ context.Context, assets *big.Int, receiver common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.depositErr != nil {
		return nil, p.depositErr
	}
	if p.depositCap != nil {
		remaining := new(big.Int).Sub(p.depositCap, p.totalAssets)
		if assets.Cmp(remaining) > 0 {
			return nil, fmt.Errorf("pool %s: deposit of %s exceeds remaining cap %s", p.symbol, assets, remaining)
		}
	}

	minted := p.toShares(assets)
	if err := p.asset.Transfer(receiver, p.addr, assets); err != nil {
		return nil, err
	}
	p.totalAssets.Add(p.totalAssets, assets)
	p.totalShares.Add(p.totalShares, minted)
	bal := p.shareBalance(receiver)
	bal.Add(bal, minted)
	return new(big.Int).Set(minted), nil
}

// Redeem burns owner's shares and pays the corresponding assets to receiver.
// Integer division rounds down, so redeemed value can fall short of the
// conversion quoted for the original deposit.
func (p *Pool) Redeem(_ context.Context, shares *big.Int, receiver, owner common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bal := p.shareBalance(owner)
	if bal.Cmp(shares) < 0 {
		return nil, fmt.Errorf("pool %s: redeem of %s shares exceeds balance %s", p.symbol, shares, bal)
	}
	assets := p.toAssets(shares)
	if err := p.asset.Transfer(p.addr, receiver, assets); err != nil {
		return nil, err
	}
	bal.Sub(bal, shares)
	p.totalShares.Sub(p.totalShares, shares)
	p.totalAssets.Sub(p.totalAssets, assets)
	return assets, nil
}

func (p *Pool) MaxDeposit(_ context.Context, _ common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.depositCap == nil {
		return new(big.Int).Set(maxUint256), nil
	}
	remaining := new(big.Int).Sub(p.depositCap, p.totalAssets)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	return remaining, nil
}

// Accrue simulates auto-compounded yield: the pool's asset holdings grow
// while the share supply stays fixed, raising the share price.
func (p *Pool) Accrue(yield *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asset.Mint(p.addr, yield)
	p.totalAssets.Add(p.totalAssets, yield)
}

// Slash simulates a realized loss in the pool: asset holdings shrink while
// the share supply stays fixed, lowering the share price.
func (p *Pool) Slash(loss *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if loss.Cmp(p.totalAssets) > 0 {
		return fmt.Errorf("pool %s: slash of %s exceeds total assets %s", p.symbol, loss, p.totalAssets)
	}
	if err := p.asset.Burn(p.addr, loss); err != nil {
		return err
	}
	p.totalAssets.Sub(p.totalAssets, loss)
	return nil
}

// SetDepositCap bounds total pool assets. A nil cap removes the bound.
func (p *Pool) SetDepositCap(cap *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cap == nil {
		p.depositCap = nil
		return
	}
	p.depositCap = new(big.Int).Set(cap)
}

// FailDeposits forces subsequent Deposit calls to return err. Pass nil to
// restore normal behavior.
func (p *Pool) FailDeposits(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.depositErr = err
}

// SharesOf reports the share balance of account.
func (p *Pool) SharesOf(account common.Address) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.shareBalance(account))
}

// transferShares moves receipt tokens between accounts. Used by the rewarder
// to take custody of staked shares.
func (p *Pool) transferShares(from, to common.Address, amount *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fromBal := p.shareBalance(from)
	if fromBal.Cmp(amount) < 0 {
		return errors.New("pool: share transfer exceeds balance")
	}
	fromBal.Sub(fromBal, amount)
	toBal := p.shareBalance(to)
	toBal.Add(toBal, amount)
	return nil
}

// toShares converts assets to shares at the current rate.
// Callers must hold p.mu.
func (p *Pool) toShares(assets *big.Int) *big.Int {
	if p.totalShares.Sign() == 0 || p.totalAssets.Sign() == 0 {
		return new(big.Int).Set(assets)
	}
	out := new(big.Int).Mul(assets, p.totalShares)
	return out.Div(out, p.totalAssets)
}

// toAssets converts shares to assets at the current rate.
// Callers must hold p.mu.
func (p *Pool) toAssets(shares *big.Int) *big.Int {
	if p.totalShares.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(shares, p.totalAssets)
	return out.Div(out, p.totalShares)
}

// shareBalance returns the live share entry for account.
// Callers must hold p.mu.
func (p *Pool) shareBalance(account common.Address) *big.Int {
	bal, ok := p.shares[account]
	if !ok {
		bal = new(big.Int)
		p.shares[account] = bal
	}
	return bal
}
