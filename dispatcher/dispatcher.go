// Package dispatcher routes create/accept intents to the correct
// chain-specific origination flow, prices them through the fee engine, and
// normalizes adapter results into registry records.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tezexlabs/coordinator/chain"
	"github.com/tezexlabs/coordinator/fees"
	"github.com/tezexlabs/coordinator/models"
	"github.com/tezexlabs/coordinator/registry"
	"github.com/tezexlabs/coordinator/units"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "dispatcher").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "dispatcher").Logger()
}

// ErrSwapCreationFailed is returned when a chain rejected the origination or
// counter-origination transaction. The underlying adapter error is wrapped;
// the registry is left untouched.
var ErrSwapCreationFailed = errors.New("swap creation failed")

// Dispatcher wires user intent to the adapters, the fee engine and the
// registry.
type Dispatcher struct {
	registry      *registry.Registry
	engine        *fees.Engine
	adapters      map[models.Chain]chain.LedgerAdapter
	tokenDecimals int32
}

// New creates a dispatcher. adapters must contain an entry for both chains.
func New(reg *registry.Registry, engine *fees.Engine, adapters map[models.Chain]chain.LedgerAdapter, tokenDecimals int32) *Dispatcher {
	return &Dispatcher{
		registry:      reg,
		engine:        engine,
		adapters:      adapters,
		tokenDecimals: tokenDecimals,
	}
}

// Originate opens a new swap on the origin chain for a requested destination
// amount. The quote must be no older than one refresh interval; a stale or
// unavailable quote fails the whole operation before any chain call. On
// adapter failure no record is inserted.
func (d *Dispatcher) Originate(ctx context.Context, origin models.Chain, requested decimal.Decimal) (models.SwapRecord, error) {
	if !requested.IsPositive() {
		return models.SwapRecord{}, fmt.Errorf("%w: requested value must be positive", ErrSwapCreationFailed)
	}

	quote, err := d.engine.Fresh(ctx, origin)
	if err != nil {
		return models.SwapRecord{}, err
	}

	minReturn := d.engine.MinReturn(requested, quote.BotFee)
	if !minReturn.IsPositive() {
		return models.SwapRecord{}, fmt.Errorf(
			"%w: requested value %s does not cover bot fee %s",
			ErrSwapCreationFailed, requested, quote.BotFee,
		)
	}

	adapter := d.adapters[origin]
	result, err := adapter.Initiate(ctx,
		units.ToRaw(requested, d.tokenDecimals),
		units.ToRaw(minReturn, d.tokenDecimals),
	)
	if err != nil {
		return models.SwapRecord{}, fmt.Errorf("%w: %w", ErrSwapCreationFailed, err)
	}

	record := models.SwapRecord{
		HashedSecret: result.HashedSecret,
		OriginChain:  origin,
		Value:        requested,
		MinReturn:    minReturn,
		RefundTime:   result.RefundTime,
		State:        models.SwapInitiated,
	}
	if err := d.registry.Insert(record); err != nil {
		// A colliding hashed secret means the adapter produced a digest we
		// already track. The chain leg exists; surface the conflict.
		return models.SwapRecord{}, fmt.Errorf("%w: %w", ErrSwapCreationFailed, err)
	}

	log.Info().
		Str("hashed_secret", record.HashedSecret).
		Str("origin", origin.String()).
		Str("value", requested.String()).
		Str("min_return", minReturn.String()).
		Msg("swap originated")
	return record, nil
}

// Accept matches a waiting swap by locking the counter leg on the
// destination chain. On success the record carries the committed amount and
// the Countered state; on failure nothing is inserted or mutated.
func (d *Dispatcher) Accept(ctx context.Context, origin models.Chain, waiting chain.SwapDescriptor) (models.SwapRecord, error) {
	dest := origin.Other()
	adapter := d.adapters[dest]

	result, err := adapter.AddCounterParty(ctx, waiting.HashedSecret, waiting.Value)
	if err != nil {
		return models.SwapRecord{}, fmt.Errorf("%w: %w", ErrSwapCreationFailed, err)
	}

	value := units.FromRaw(waiting.Value, d.tokenDecimals)
	exact := units.FromRaw(result.Exact, d.tokenDecimals)

	// Waiting swaps discovered on-chain are usually not in the registry
	// yet; register the observed leg before advancing it.
	if _, err := d.registry.Get(waiting.HashedSecret); err != nil {
		record := models.SwapRecord{
			HashedSecret: waiting.HashedSecret,
			OriginChain:  origin,
			Value:        value,
			MinReturn:    value,
			RefundTime:   waiting.RefundTime,
		}
		if insertErr := d.registry.Insert(record); insertErr != nil {
			return models.SwapRecord{}, fmt.Errorf("%w: %w", ErrSwapCreationFailed, insertErr)
		}
	}

	if err := d.registry.Advance(waiting.HashedSecret, models.SwapCountered, &exact); err != nil {
		return models.SwapRecord{}, fmt.Errorf("%w: %w", ErrSwapCreationFailed, err)
	}

	record, err := d.registry.Get(waiting.HashedSecret)
	if err != nil {
		return models.SwapRecord{}, err
	}

	log.Info().
		Str("hashed_secret", record.HashedSecret).
		Str("origin", origin.String()).
		Str("exact", exact.String()).
		Msg("counterparty added")
	return record, nil
}
