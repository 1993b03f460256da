// Package fees computes the economic terms of a prospective counter-swap:
// the bot's required compensation and the initiator's expected on-chain cost
// per leg, from live price, gas and chain-fee inputs.
package fees

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tezexlabs/coordinator/chain"
	"github.com/tezexlabs/coordinator/models"
	"github.com/tezexlabs/coordinator/units"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "fees").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "fees").Logger()
}

// ErrQuoteUnavailable is returned when any of the quote's input fetches
// fails. A quote computed from stale or missing inputs could misprice risk
// for either party, so there are no partial quotes.
var ErrQuoteUnavailable = errors.New("fee quote unavailable")

// price pairs served by the fee tracker.
const (
	pairEthereum = "ETH-USD"
	pairTezos    = "XTZ-USD"
)

// Config tunes the engine.
type Config struct {
	// FeePad is the fixed safety margin (> 1.0) applied to the bot fee so
	// the quoted fee still covers cost drift between quote time and
	// execution time.
	FeePad decimal.Decimal

	// TokenDecimals is the swap tokens' decimal exponent, shared by both
	// chains' tokens. Bot fees and minimum returns truncate to this
	// precision.
	TokenDecimals int32

	// GasPriceDecimals converts the raw gas price to its display unit
	// (wei to ether).
	GasPriceDecimals int32

	// MaxQuoteAge bounds how old a cached quote may be before origination
	// must re-fetch. Must not exceed the refresh interval, or Fresh could
	// serve a quote from a prior cycle.
	MaxQuoteAge time.Duration
}

// DefaultConfig returns the production tuning. MaxQuoteAge matches the
// session's quote refresh interval.
func DefaultConfig() Config {
	return Config{
		FeePad:           decimal.NewFromFloat(1.05),
		TokenDecimals:    6,
		GasPriceDecimals: 18,
		MaxQuoteAge:      90 * time.Second,
	}
}

// Engine fetches quote inputs and assembles FeeQuotes. It keeps the last
// good quote per direction so a failed refresh degrades to a stale quote
// instead of none.
type Engine struct {
	feeds chain.FeedSource
	gas   chain.GasPricer
	cfg   Config

	mu   sync.RWMutex
	last map[models.Chain]models.FeeQuote
}

// NewEngine creates an engine over the fee tracker and the gas-priced
// chain's adapter.
func NewEngine(feeds chain.FeedSource, gas chain.GasPricer, cfg Config) *Engine {
	return &Engine{
		feeds: feeds,
		gas:   gas,
		cfg:   cfg,
		last:  make(map[models.Chain]models.FeeQuote),
	}
}

// quoteInputs are the independently fetched external values a quote is
// assembled from.
type quoteInputs struct {
	schedules models.FeeSchedules
	priceEth  decimal.Decimal
	priceXtz  decimal.Decimal
	reward    decimal.Decimal
	gasPrice  decimal.Decimal
	stats     models.BotStats
}

// fetchInputs runs the input fetches concurrently; they are independent
// network calls with no ordering dependency. The first failure poisons the
// whole fetch.
func (e *Engine) fetchInputs(ctx context.Context) (*quoteInputs, error) {
	var (
		in   quoteInputs
		wg   sync.WaitGroup
		errs [6]error
	)

	wg.Add(6)
	go func() {
		defer wg.Done()
		in.schedules, errs[0] = e.feeds.GetFees(ctx)
	}()
	go func() {
		defer wg.Done()
		in.priceEth, errs[1] = e.feeds.GetPrice(ctx, pairEthereum)
	}()
	go func() {
		defer wg.Done()
		in.priceXtz, errs[2] = e.feeds.GetPrice(ctx, pairTezos)
	}()
	go func() {
		defer wg.Done()
		in.reward, errs[3] = e.feeds.GetReward(ctx)
	}()
	go func() {
		defer wg.Done()
		raw, err := e.gas.GasPrice(ctx)
		if err != nil {
			errs[4] = err
			return
		}
		in.gasPrice = units.FromRaw(raw, e.cfg.GasPriceDecimals)
	}()
	go func() {
		defer wg.Done()
		in.stats, errs[5] = e.feeds.GetBotStats(ctx)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, err)
		}
	}
	return &in, nil
}

// tokenScale is 10^TokenDecimals; Tezos fee entries are mutez and divide by
// it to reach the common unit.
func (e *Engine) tokenScale() decimal.Decimal {
	return decimal.New(1, e.cfg.TokenDecimals)
}

// commonCost converts a chain-fee entry into the common (USD) unit: Ethereum
// entries are gas counts priced by gas price and ETH spot, Tezos entries are
// mutez priced by XTZ spot.
func (e *Engine) commonCost(c models.Chain, fee decimal.Decimal, in *quoteInputs) decimal.Decimal {
	if c.GasPriced() {
		return fee.Mul(in.gasPrice).Mul(in.priceEth)
	}
	return fee.Mul(in.priceXtz).Div(e.tokenScale())
}

// nativeCost converts a chain-fee entry into the chain's own display unit.
func (e *Engine) nativeCost(c models.Chain, fee decimal.Decimal, in *quoteInputs) decimal.Decimal {
	if c.GasPriced() {
		return fee.Mul(in.gasPrice)
	}
	return fee.Div(e.tokenScale())
}

// assemble computes the quote for one direction from fetched inputs.
//
// The counterparty bot pays initiateWait+addCounterParty on the destination
// chain and redeem on the origin chain; both convert to the common unit,
// the pad covers drift, and the result truncates toward the bot's
// counterparty. The initiator pays initiateWait+addCounterParty on the
// origin chain and redeem on the destination chain, each in native units.
func (e *Engine) assemble(origin models.Chain, in *quoteInputs) models.FeeQuote {
	dest := origin.Other()
	feeOrigin := in.schedules.Schedule(origin)
	feeDest := in.schedules.Schedule(dest)

	openLeg := feeDest.InitiateWait.Add(feeDest.AddCounterParty)
	botFee := e.commonCost(dest, openLeg, in).
		Add(e.commonCost(origin, feeOrigin.Redeem, in)).
		Mul(e.cfg.FeePad).
		Truncate(e.cfg.TokenDecimals)

	originOps := feeOrigin.InitiateWait.Add(feeOrigin.AddCounterParty)
	txFee := models.TxFees{}
	if origin.GasPriced() {
		txFee.Ethereum = e.nativeCost(origin, originOps, in)
		txFee.Tezos = e.nativeCost(dest, feeDest.Redeem, in)
	} else {
		txFee.Tezos = e.nativeCost(origin, originOps, in)
		txFee.Ethereum = e.nativeCost(dest, feeDest.Redeem, in)
	}

	return models.FeeQuote{
		OriginChain: origin,
		Reward:      in.reward,
		BotFee:      botFee,
		TxFee:       txFee,
		Stats:       in.stats,
		FetchedAt:   time.Now(),
	}
}

// Quote fetches fresh inputs and computes the terms for a swap originating
// on the given chain. All-or-nothing: any failed input fetch yields
// ErrQuoteUnavailable and the previous quote stays in place.
func (e *Engine) Quote(ctx context.Context, origin models.Chain) (models.FeeQuote, error) {
	in, err := e.fetchInputs(ctx)
	if err != nil {
		return models.FeeQuote{}, err
	}

	quote := e.assemble(origin, in)

	e.mu.Lock()
	e.last[origin] = quote
	e.mu.Unlock()

	log.Debug().
		Str("origin", origin.String()).
		Str("bot_fee", quote.BotFee.String()).
		Str("reward", quote.Reward.String()).
		Msg("quote refreshed")
	return quote, nil
}

// Refresh recomputes both directions from one input fetch. On failure the
// previous quotes remain available (stale-but-available), except on first
// load where none yet exists.
func (e *Engine) Refresh(ctx context.Context) error {
	in, err := e.fetchInputs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("quote refresh failed, keeping previous quotes")
		return err
	}

	e.mu.Lock()
	for _, origin := range []models.Chain{models.ChainEthereum, models.ChainTezos} {
		e.last[origin] = e.assemble(origin, in)
	}
	e.mu.Unlock()
	return nil
}

// Latest returns the last good quote for a direction, if any.
func (e *Engine) Latest(origin models.Chain) (models.FeeQuote, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	quote, ok := e.last[origin]
	return quote, ok
}

// Fresh returns a quote no older than MaxQuoteAge, re-fetching when the
// cached one has expired. Origination must never price off a prior cycle.
func (e *Engine) Fresh(ctx context.Context, origin models.Chain) (models.FeeQuote, error) {
	if quote, ok := e.Latest(origin); ok && time.Since(quote.FetchedAt) <= e.cfg.MaxQuoteAge {
		return quote, nil
	}
	return e.Quote(ctx, origin)
}

// MinReturn computes the minimum the initiator is guaranteed to receive for
// a requested destination amount, truncated toward the receiving party.
func (e *Engine) MinReturn(requested, botFee decimal.Decimal) decimal.Decimal {
	return requested.Sub(botFee).Truncate(e.cfg.TokenDecimals)
}
