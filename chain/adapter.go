// Package chain defines the boundary between the coordinator core and the
// per-ledger adapters. Adapters are thin RPC/contract-call wrappers; they do
// not retry failed transactions and they hold no swap state of their own.
package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tezexlabs/coordinator/models"
)

// ErrAdapterTimeout is returned by adapters when an RPC round-trip exceeds
// its deadline. Callers decide whether to retry; the core never does.
var ErrAdapterTimeout = errors.New("chain adapter timeout")

// SwapDescriptor mirrors one on-chain HTLC entry as reported by a ledger.
type SwapDescriptor struct {
	HashedSecret string
	Initiator    string
	Participant  string

	// Value is the locked amount in raw token units.
	Value *big.Int

	// Exact is the counterparty's committed amount in raw token units, nil
	// while the swap is still waiting for one.
	Exact *big.Int

	RefundTime time.Time

	// State is the lifecycle stage derived from the contract entry.
	State models.SwapState
}

// InitiateResult is returned by a successful origin-leg lock.
type InitiateResult struct {
	HashedSecret string
	RefundTime   time.Time
}

// CounterResult is returned by a successful counter-leg lock.
type CounterResult struct {
	// Exact is the amount actually committed, in raw token units.
	Exact *big.Int
}

// LedgerAdapter is the per-chain read/write surface consumed by the core.
// All blocking operations take a context; cancellation aborts the local wait
// but in-flight chain transactions complete or fail on their own.
type LedgerAdapter interface {
	// Account returns the adapter's configured account address.
	Account() string

	// Balance returns the native balance of an account in raw units.
	Balance(ctx context.Context, account string) (*big.Int, error)

	// TokenBalance returns the swap-token balance of an account in raw units.
	TokenBalance(ctx context.Context, account string) (*big.Int, error)

	// UserSwaps lists the on-chain swap entries initiated by an account.
	UserSwaps(ctx context.Context, account string) ([]SwapDescriptor, error)

	// WaitingSwaps lists swap entries still open for a counterparty, no
	// older than maxAge.
	WaitingSwaps(ctx context.Context, maxAge time.Duration) ([]SwapDescriptor, error)

	// Initiate locks the origin leg of a new swap. The adapter generates
	// the secret and returns its digest.
	Initiate(ctx context.Context, value, minReturn *big.Int) (*InitiateResult, error)

	// AddCounterParty locks the counter leg against an existing swap.
	AddCounterParty(ctx context.Context, hashedSecret string, amount *big.Int) (*CounterResult, error)
}

// GasPricer is implemented by adapters for chains whose fees scale with a
// network gas price.
type GasPricer interface {
	// GasPrice returns the suggested gas price in raw units (wei).
	GasPrice(ctx context.Context) (*big.Int, error)
}

// FeedSource supplies the off-chain economic inputs of a fee quote: the fee
// tracker's schedules, spot prices, the current bot reward rate, and the
// aggregate bot activity snapshot.
type FeedSource interface {
	GetFees(ctx context.Context) (models.FeeSchedules, error)
	GetPrice(ctx context.Context, pair string) (decimal.Decimal, error)
	GetReward(ctx context.Context) (decimal.Decimal, error)
	GetBotStats(ctx context.Context) (models.BotStats, error)
}
