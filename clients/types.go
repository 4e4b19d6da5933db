package clients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Token is the minimal asset-ledger surface the adapter depends on.
// The adapter only ever reads its own idle balance; transfers in and out
// are driven by the outer vault and the pool.
type Token interface {
	Address() common.Address
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// YieldPool is the external auto-compounding pool the adapter deposits the
// asset into. The pool itself is the receipt token: shares minted on deposit
// are denominated in the pool's own ledger, and Address() is the receipt
// token's identity.
//
// The only behavioral assumption made here is that ConvertToShares and
// ConvertToAssets are monotonic and approximately inverse at any single
// observation point. Rates may move between calls.
type YieldPool interface {
	Address() common.Address
	Asset(ctx context.Context) (common.Address, error)
	Symbol(ctx context.Context) (string, error)
	ConvertToShares(ctx context.Context, assets *big.Int) (*big.Int, error)
	ConvertToAssets(ctx context.Context, shares *big.Int) (*big.Int, error)
	Deposit(ctx context.Context, assets *big.Int, receiver common.Address) (*big.Int, error)
	Redeem(ctx context.Context, shares *big.Int, receiver, owner common.Address) (*big.Int, error)
	MaxDeposit(ctx context.Context, receiver common.Address) (*big.Int, error)
}

// Rewarder is the external staking contract that holds pool shares on the
// adapter's behalf and accrues incentive rewards against them.
type Rewarder interface {
	Address() common.Address
	StakingToken(ctx context.Context) (common.Address, error)
	Stake(ctx context.Context, account common.Address, amount *big.Int) error
	// Withdraw unstakes amount for account. When claim is true any pending
	// rewards are paid out in the same call.
	Withdraw(ctx context.Context, account common.Address, amount *big.Int, claim bool) error
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	GetReward(ctx context.Context, account common.Address) error
}
