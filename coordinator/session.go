// Package coordinator ties the registry, fee engine, dispatcher and
// scheduler into one session with an explicit construction/teardown
// lifecycle. Nothing here is ambient global state: every component receives
// the session's dependencies at construction.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tezexlabs/coordinator/chain"
	"github.com/tezexlabs/coordinator/dispatcher"
	"github.com/tezexlabs/coordinator/fees"
	"github.com/tezexlabs/coordinator/models"
	"github.com/tezexlabs/coordinator/registry"
	"github.com/tezexlabs/coordinator/scheduler"
	"github.com/tezexlabs/coordinator/units"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "coordinator").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "coordinator").Logger()
}

// Config tunes the session's refresh cadence and unit handling.
type Config struct {
	// BalanceInterval is the balance refresh period.
	BalanceInterval time.Duration
	// WaitingInterval is the waiting-swap list refresh period. The list
	// changes slowly; polling is cheap enough at this cadence.
	WaitingInterval time.Duration
	// QuoteInterval is the fee/price/reward refresh period. Price and gas
	// volatility require a tighter refresh than swap listings.
	QuoteInterval time.Duration
	// SyncInterval is the swap state observation period.
	SyncInterval time.Duration

	// WaitingMaxAge filters waiting swaps whose refund margin is too thin
	// to safely counter.
	WaitingMaxAge time.Duration

	// TokenDecimals is the swap tokens' decimal exponent.
	TokenDecimals int32
	// NativeDecimals maps each chain to its native decimal exponent.
	NativeDecimals map[models.Chain]int32
	// DisplayPrecision truncates balance snapshots.
	DisplayPrecision int32
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		BalanceInterval:  time.Minute,
		WaitingInterval:  10 * time.Minute,
		QuoteInterval:    90 * time.Second,
		SyncInterval:     time.Minute,
		WaitingMaxAge:    70 * time.Minute,
		TokenDecimals:    6,
		NativeDecimals:   map[models.Chain]int32{models.ChainEthereum: 18, models.ChainTezos: 6},
		DisplayPrecision: 6,
	}
}

// ChainBalances is one chain's balance snapshot in display units.
type ChainBalances struct {
	Native decimal.Decimal `json:"native"`
	Token  decimal.Decimal `json:"token"`
}

// Session is the coordinating process state: accounts, registry, quotes,
// balance and waiting-list snapshots, and the periodic tasks that refresh
// them. Construct with New, release with Close.
type Session struct {
	cfg      Config
	adapters map[models.Chain]chain.LedgerAdapter

	Registry   *registry.Registry
	Engine     *fees.Engine
	Dispatcher *dispatcher.Dispatcher

	sched *scheduler.Scheduler

	mu       sync.RWMutex
	balances map[models.Chain]ChainBalances
	waiting  map[models.Chain][]chain.SwapDescriptor

	closeOnce sync.Once
}

// New builds a session, rebuilds the registry from both chains' on-chain
// swap entries, and starts the refresh tasks. The registry is volatile by
// design; the chains are the durable record.
func New(ctx context.Context, cfg Config, adapters map[models.Chain]chain.LedgerAdapter, engine *fees.Engine) (*Session, error) {
	reg := registry.New()
	s := &Session{
		cfg:        cfg,
		adapters:   adapters,
		Registry:   reg,
		Engine:     engine,
		Dispatcher: dispatcher.New(reg, engine, adapters, cfg.TokenDecimals),
		sched:      scheduler.New(),
		balances:   make(map[models.Chain]ChainBalances),
		waiting:    make(map[models.Chain][]chain.SwapDescriptor),
	}

	if err := s.rebuildRegistry(ctx); err != nil {
		return nil, fmt.Errorf("failed to rebuild registry: %w", err)
	}

	s.sched.Add("balances", cfg.BalanceInterval, s.refreshBalances)
	s.sched.Add("waiting-swaps", cfg.WaitingInterval, s.refreshWaiting)
	s.sched.Add("fee-quote", cfg.QuoteInterval, s.refreshQuotes)
	s.sched.Add("swap-sync", cfg.SyncInterval, s.syncSwaps)
	return s, nil
}

// Close cancels all refresh tasks before releasing shared state. In-flight
// chain calls complete or fail on their own.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.sched.Stop()
		log.Info().Msg("session closed")
	})
}

// rebuildRegistry seeds the registry from each chain's user swap entries.
func (s *Session) rebuildRegistry(ctx context.Context) error {
	for c, adapter := range s.adapters {
		descriptors, err := adapter.UserSwaps(ctx, adapter.Account())
		if err != nil {
			return fmt.Errorf("user swaps on %s: %w", c, err)
		}
		for _, desc := range descriptors {
			record := s.recordFromDescriptor(c, desc)
			if err := s.Registry.Insert(record); err != nil {
				log.Warn().Err(err).Str("hashed_secret", desc.HashedSecret).Msg("skipping swap during rebuild")
				continue
			}
			// Re-apply the observed stage; Insert always starts at
			// Initiated.
			if desc.State != models.SwapInitiated {
				s.applyObservedState(desc)
			}
		}
		log.Info().
			Str("chain", c.String()).
			Int("count", len(descriptors)).
			Msg("registry rebuilt from chain")
	}
	return nil
}

func (s *Session) recordFromDescriptor(origin models.Chain, desc chain.SwapDescriptor) models.SwapRecord {
	return models.SwapRecord{
		HashedSecret: desc.HashedSecret,
		OriginChain:  origin,
		Value:        units.ToDisplay(desc.Value, s.cfg.TokenDecimals, s.cfg.DisplayPrecision),
		MinReturn:    decimal.Zero,
		RefundTime:   desc.RefundTime,
		State:        models.SwapInitiated,
	}
}

// applyObservedState walks the registry forward to the observed stage,
// skipping stages the registry has already recorded. Stages the chain settled
// past between two polls are replayed so the mirror still reaches the
// terminal state.
func (s *Session) applyObservedState(desc chain.SwapDescriptor) {
	record, err := s.Registry.Get(desc.HashedSecret)
	if err != nil || record.State == desc.State || record.State.Terminal() {
		return
	}

	var exact *decimal.Decimal
	if desc.Exact != nil {
		v := units.FromRaw(desc.Exact, s.cfg.TokenDecimals)
		exact = &v
	}

	var path []models.SwapState
	switch desc.State {
	case models.SwapCountered:
		path = []models.SwapState{models.SwapCountered}
	case models.SwapRedeemed:
		path = []models.SwapState{models.SwapCountered, models.SwapRedeemed}
	case models.SwapRefunded:
		if desc.Exact == nil {
			path = []models.SwapState{models.SwapRefunded}
		} else {
			path = []models.SwapState{models.SwapCountered, models.SwapRefunded}
		}
	default:
		return
	}

	for _, state := range path {
		if state == record.State {
			continue
		}
		if err := s.Registry.Advance(desc.HashedSecret, state, exact); err != nil {
			return
		}
		exact = nil
	}
}

// refreshBalances polls both chains' native and token balances.
func (s *Session) refreshBalances(ctx context.Context) error {
	for c, adapter := range s.adapters {
		native, err := adapter.Balance(ctx, adapter.Account())
		if err != nil {
			return fmt.Errorf("balance on %s: %w", c, err)
		}
		token, err := adapter.TokenBalance(ctx, adapter.Account())
		if err != nil {
			return fmt.Errorf("token balance on %s: %w", c, err)
		}

		snapshot := ChainBalances{
			Native: units.ToDisplay(native, s.cfg.NativeDecimals[c], s.cfg.DisplayPrecision),
			Token:  units.ToDisplay(token, s.cfg.TokenDecimals, s.cfg.DisplayPrecision),
		}
		s.mu.Lock()
		s.balances[c] = snapshot
		s.mu.Unlock()
	}
	return nil
}

// refreshWaiting polls both chains' lists of swaps open for a counterparty.
func (s *Session) refreshWaiting(ctx context.Context) error {
	for c, adapter := range s.adapters {
		descriptors, err := adapter.WaitingSwaps(ctx, s.cfg.WaitingMaxAge)
		if err != nil {
			return fmt.Errorf("waiting swaps on %s: %w", c, err)
		}
		s.mu.Lock()
		s.waiting[c] = descriptors
		s.mu.Unlock()
	}
	return nil
}

// refreshQuotes recomputes both directions' fee quotes. A failed refresh
// keeps the previous quotes in place.
func (s *Session) refreshQuotes(ctx context.Context) error {
	return s.Engine.Refresh(ctx)
}

// syncSwaps re-observes the session's swaps on chain and mirrors their
// stages into the registry.
func (s *Session) syncSwaps(ctx context.Context) error {
	for c, adapter := range s.adapters {
		descriptors, err := adapter.UserSwaps(ctx, adapter.Account())
		if err != nil {
			return fmt.Errorf("user swaps on %s: %w", c, err)
		}
		for _, desc := range descriptors {
			record, err := s.Registry.Get(desc.HashedSecret)
			if err != nil {
				// Swap appeared on chain outside this session.
				if insertErr := s.Registry.Insert(s.recordFromDescriptor(c, desc)); insertErr != nil {
					continue
				}
				record, _ = s.Registry.Get(desc.HashedSecret)
			}
			if desc.State != record.State {
				s.applyObservedState(desc)
			}
		}
	}
	return nil
}

// Balances returns the latest balance snapshot per chain.
func (s *Session) Balances() map[models.Chain]ChainBalances {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Chain]ChainBalances, len(s.balances))
	for c, b := range s.balances {
		out[c] = b
	}
	return out
}

// WaitingSwaps returns the latest waiting-swap snapshot for a chain.
func (s *Session) WaitingSwaps(c models.Chain) []chain.SwapDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chain.SwapDescriptor(nil), s.waiting[c]...)
}
