// Package mock provides controllable in-memory implementations of the chain
// boundary interfaces for tests.
package mock

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tezexlabs/coordinator/chain"
	"github.com/tezexlabs/coordinator/models"
)

// Ledger implements chain.LedgerAdapter and chain.GasPricer with settable
// results and failure injection.
type Ledger struct {
	mu sync.Mutex

	AccountAddr      string
	NativeBalance    *big.Int
	TokenBalanceAmt  *big.Int
	GasPriceWei      *big.Int
	UserSwapList     []chain.SwapDescriptor
	WaitingSwapList  []chain.SwapDescriptor
	RefundWindow     time.Duration
	NextHashedSecret string

	// Err, when set, fails every operation.
	Err error

	InitiateCalls int
	CounterCalls  int
}

var (
	_ chain.LedgerAdapter = (*Ledger)(nil)
	_ chain.GasPricer     = (*Ledger)(nil)
)

// NewLedger creates a mock ledger with zeroed balances.
func NewLedger(account string) *Ledger {
	return &Ledger{
		AccountAddr:     account,
		NativeBalance:   big.NewInt(0),
		TokenBalanceAmt: big.NewInt(0),
		GasPriceWei:     big.NewInt(0),
		RefundWindow:    48 * time.Hour,
	}
}

func (l *Ledger) Account() string {
	return l.AccountAddr
}

// SetUserSwaps replaces the user swap list under the mock's lock, for tests
// that mutate chain state while refresh tasks are running.
func (l *Ledger) SetUserSwaps(swaps []chain.SwapDescriptor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.UserSwapList = swaps
}

func (l *Ledger) Balance(ctx context.Context, account string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	return new(big.Int).Set(l.NativeBalance), nil
}

func (l *Ledger) TokenBalance(ctx context.Context, account string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	return new(big.Int).Set(l.TokenBalanceAmt), nil
}

func (l *Ledger) GasPrice(ctx context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	return new(big.Int).Set(l.GasPriceWei), nil
}

func (l *Ledger) UserSwaps(ctx context.Context, account string) ([]chain.SwapDescriptor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	return append([]chain.SwapDescriptor(nil), l.UserSwapList...), nil
}

func (l *Ledger) WaitingSwaps(ctx context.Context, maxAge time.Duration) ([]chain.SwapDescriptor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	return append([]chain.SwapDescriptor(nil), l.WaitingSwapList...), nil
}

func (l *Ledger) Initiate(ctx context.Context, value, minReturn *big.Int) (*chain.InitiateResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.InitiateCalls++
	if l.Err != nil {
		return nil, fmt.Errorf("mock initiate failed: %w", l.Err)
	}

	hashedSecret := l.NextHashedSecret
	if hashedSecret == "" {
		var secret [32]byte
		_, _ = rand.Read(secret[:])
		digest := sha256.Sum256(secret[:])
		hashedSecret = hex.EncodeToString(digest[:])
	}
	return &chain.InitiateResult{
		HashedSecret: hashedSecret,
		RefundTime:   time.Now().Add(l.RefundWindow).UTC().Truncate(time.Second),
	}, nil
}

func (l *Ledger) AddCounterParty(ctx context.Context, hashedSecret string, amount *big.Int) (*chain.CounterResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.CounterCalls++
	if l.Err != nil {
		return nil, fmt.Errorf("mock add counterparty failed: %w", l.Err)
	}
	return &chain.CounterResult{Exact: new(big.Int).Set(amount)}, nil
}

// Feed implements chain.FeedSource with fixed values and failure injection.
type Feed struct {
	mu sync.Mutex

	Schedules models.FeeSchedules
	Prices    map[string]decimal.Decimal
	Reward    decimal.Decimal
	Stats     models.BotStats

	// FailFees, FailPrice, FailReward and FailStats fail the matching
	// fetch when set.
	FailFees   error
	FailPrice  error
	FailReward error
	FailStats  error
}

var _ chain.FeedSource = (*Feed)(nil)

func (f *Feed) GetFees(ctx context.Context) (models.FeeSchedules, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailFees != nil {
		return models.FeeSchedules{}, f.FailFees
	}
	return f.Schedules, nil
}

func (f *Feed) GetPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailPrice != nil {
		return decimal.Decimal{}, f.FailPrice
	}
	price, ok := f.Prices[pair]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no price for %s", pair)
	}
	return price, nil
}

func (f *Feed) GetReward(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailReward != nil {
		return decimal.Decimal{}, f.FailReward
	}
	return f.Reward, nil
}

func (f *Feed) GetBotStats(ctx context.Context) (models.BotStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailStats != nil {
		return models.BotStats{}, f.FailStats
	}
	return f.Stats, nil
}
