// Package registry holds the authoritative local map from hashed secret to
// swap record. The on-chain contracts remain the source of truth for fund
// custody; the registry mirrors what the coordinator has observed and is
// rebuilt from chain queries on startup.
package registry

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tezexlabs/coordinator/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "registry").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "registry").Logger()
}

var (
	// ErrDuplicateSwap is returned when inserting a hashed secret that is
	// already registered. Hashed secrets are never reused.
	ErrDuplicateSwap = errors.New("duplicate swap")

	// ErrUnknownSwap is returned when advancing or fetching a hashed secret
	// that is not registered.
	ErrUnknownSwap = errors.New("unknown swap")

	// ErrStaleTransition is returned when an advance would move a record
	// backward or out of the lifecycle graph.
	ErrStaleTransition = errors.New("stale state transition")
)

// Observer is invoked after a record mutates, with a copy of its new value.
type Observer func(models.SwapRecord)

// Registry is the only mutable shared state of the coordinator. Insert and
// Advance serialize with each other and with Snapshot; readers never observe
// a record mid-update.
type Registry struct {
	mu        sync.RWMutex
	swaps     map[string]*models.SwapRecord
	order     []string // insertion order, for stable snapshots
	observers []Observer

	// notifyMu serializes observer delivery in mutation order. It is
	// acquired before mu is released, so a later Advance cannot deliver
	// its callbacks ahead of an earlier one.
	notifyMu sync.Mutex
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		swaps: make(map[string]*models.SwapRecord),
	}
}

// Subscribe registers an observer called on every Advance mutation, in the
// order the mutations were applied. Must be called before the scheduler
// starts feeding the registry; observers must not call back into the
// registry.
func (r *Registry) Subscribe(obs Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, obs)
}

// Insert adds a new record in the SwapInitiated state. Fails with
// ErrDuplicateSwap if the hashed secret is already present; the original
// record is left unmodified.
func (r *Registry) Insert(record models.SwapRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.swaps[record.HashedSecret]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSwap, record.HashedSecret)
	}

	record.State = models.SwapInitiated
	r.swaps[record.HashedSecret] = &record
	r.order = append(r.order, record.HashedSecret)

	log.Info().
		Str("hashed_secret", record.HashedSecret).
		Str("origin", record.OriginChain.String()).
		Str("value", record.Value.String()).
		Msg("swap registered")
	return nil
}

// legal transitions; terminal states have none.
var transitions = map[models.SwapState][]models.SwapState{
	models.SwapInitiated: {models.SwapCountered, models.SwapRefunded},
	models.SwapCountered: {models.SwapRedeemed, models.SwapRefunded},
}

func legalTransition(from, to models.SwapState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Advance moves a record to newState and, when exact is non-nil, records the
// counterparty's committed amount. An unknown hashed secret or an illegal
// transition is a benign race between a chain notification and registry
// state: it is reported to the caller and logged, never fatal, and leaves
// the registry unchanged.
func (r *Registry) Advance(hashedSecret string, newState models.SwapState, exact *decimal.Decimal) error {
	r.mu.Lock()

	record, exists := r.swaps[hashedSecret]
	if !exists {
		r.mu.Unlock()
		log.Warn().
			Str("hashed_secret", hashedSecret).
			Str("state", newState.String()).
			Msg("update request for missing swap")
		return fmt.Errorf("%w: %s", ErrUnknownSwap, hashedSecret)
	}

	if !legalTransition(record.State, newState) {
		from := record.State
		r.mu.Unlock()
		log.Warn().
			Str("hashed_secret", hashedSecret).
			Str("from", from.String()).
			Str("to", newState.String()).
			Msg("rejected state transition")
		return fmt.Errorf("%w: %s -> %s", ErrStaleTransition, from, newState)
	}

	record.State = newState
	if exact != nil {
		v := *exact
		record.Exact = &v
	}
	updated := *record
	observers := r.observers
	r.notifyMu.Lock()
	r.mu.Unlock()

	log.Info().
		Str("hashed_secret", hashedSecret).
		Str("state", newState.String()).
		Msg("swap advanced")

	// Observers must not call back into the registry: a concurrent
	// Advance may be holding the write lock while waiting its turn to
	// deliver.
	for _, obs := range observers {
		obs(updated)
	}
	r.notifyMu.Unlock()
	return nil
}

// Get returns a copy of the record for a hashed secret.
func (r *Registry) Get(hashedSecret string) (models.SwapRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.swaps[hashedSecret]
	if !exists {
		return models.SwapRecord{}, fmt.Errorf("%w: %s", ErrUnknownSwap, hashedSecret)
	}
	return *record, nil
}

// Snapshot returns a consistent point-in-time copy of all records, ordered
// by refund time then hashed secret. The copy is detached from the live map.
func (r *Registry) Snapshot() []models.SwapRecord {
	r.mu.RLock()
	records := make([]models.SwapRecord, 0, len(r.order))
	for _, hash := range r.order {
		records = append(records, *r.swaps[hash])
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if !records[i].RefundTime.Equal(records[j].RefundTime) {
			return records[i].RefundTime.Before(records[j].RefundTime)
		}
		return records[i].HashedSecret < records[j].HashedSecret
	})
	return records
}

// Len returns the number of registered swaps.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.swaps)
}
