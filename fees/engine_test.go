package fees_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/tezexlabs/coordinator/chain/mock"
	"github.com/tezexlabs/coordinator/fees"
	"github.com/tezexlabs/coordinator/models"
)

// gasPriceWei returns n ether-units of gas price in raw wei.
func gasPriceWei(n int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return wei.Mul(wei, big.NewInt(n))
}

func setupEngine() (*fees.Engine, *mock.Feed, *mock.Ledger) {
	feed := &mock.Feed{
		Schedules: models.FeeSchedules{
			Ethereum: models.FeeSchedule{
				InitiateWait:    decimal.NewFromInt(100),
				AddCounterParty: decimal.NewFromInt(50),
				Redeem:          decimal.NewFromInt(80),
			},
			Tezos: models.FeeSchedule{
				InitiateWait:    decimal.NewFromInt(40),
				AddCounterParty: decimal.NewFromInt(20),
				Redeem:          decimal.NewFromInt(30),
			},
		},
		Prices: map[string]decimal.Decimal{
			"ETH-USD": decimal.NewFromInt(3000),
			"XTZ-USD": decimal.NewFromInt(1),
		},
		Reward: decimal.NewFromInt(2),
		Stats:  models.BotStats{ActiveBots: 3, TotalSwaps: 120},
	}

	ledger := mock.NewLedger("0xbot")
	ledger.GasPriceWei = gasPriceWei(50)

	return fees.NewEngine(feed, ledger, fees.DefaultConfig()), feed, ledger
}

func TestQuoteEthereumOrigin(t *testing.T) {
	engine, _, _ := setupEngine()

	quote, err := engine.Quote(context.Background(), models.ChainEthereum)
	assert.NoError(t, err)

	// Counter leg on Tezos costs (40+20) mutez at 1 USD/XTZ, redeem on
	// Ethereum costs 80 gas at a gas price of 50 and 3000 USD/ETH; the
	// 1.05 pad lands on a value that already fits 6 fractional digits.
	assert.Equal(t, quote.BotFee.String(), "12600000.000063")
	assert.Equal(t, quote.OriginChain, models.ChainEthereum)
	assert.Equal(t, quote.Reward.String(), "2")
	assert.Equal(t, quote.Stats.ActiveBots, 3)

	// The initiator pays initiateWait+addCounterParty on Ethereum and
	// redeem on Tezos, each in native units.
	assert.Equal(t, quote.TxFee.Ethereum.String(), "7500")
	assert.Equal(t, quote.TxFee.Tezos.String(), "0.00003")
}

func TestQuoteTezosOrigin(t *testing.T) {
	engine, _, _ := setupEngine()

	quote, err := engine.Quote(context.Background(), models.ChainTezos)
	assert.NoError(t, err)

	// (100+50) gas on Ethereum plus 30 mutez redeem on Tezos, padded.
	want := decimal.NewFromInt(150).
		Mul(decimal.NewFromInt(50)).
		Mul(decimal.NewFromInt(3000)).
		Add(decimal.NewFromInt(30).Div(decimal.New(1, 6))).
		Mul(decimal.RequireFromString("1.05")).
		Truncate(6)
	assert.Equal(t, quote.BotFee.String(), want.String())

	assert.Equal(t, quote.TxFee.Tezos.String(), "0.00006")
	assert.Equal(t, quote.TxFee.Ethereum.String(), "4000")
}

func TestQuoteAllOrNothing(t *testing.T) {
	engine, feed, _ := setupEngine()

	feed.FailPrice = errors.New("tracker down")
	_, err := engine.Quote(context.Background(), models.ChainEthereum)
	assert.That(t, errors.Is(err, fees.ErrQuoteUnavailable))

	_, ok := engine.Latest(models.ChainEthereum)
	assert.False(t, ok)
}

func TestRefreshKeepsPreviousQuotesOnFailure(t *testing.T) {
	engine, feed, _ := setupEngine()

	assert.NoError(t, engine.Refresh(context.Background()))
	before, ok := engine.Latest(models.ChainEthereum)
	assert.True(t, ok)

	feed.FailReward = errors.New("tracker down")
	err := engine.Refresh(context.Background())
	assert.That(t, errors.Is(err, fees.ErrQuoteUnavailable))

	after, ok := engine.Latest(models.ChainEthereum)
	assert.True(t, ok)
	assert.Equal(t, after.BotFee.String(), before.BotFee.String())
}

func TestFreshUsesRecentCache(t *testing.T) {
	engine, feed, _ := setupEngine()

	assert.NoError(t, engine.Refresh(context.Background()))

	// A dead tracker does not matter while the cached quote is fresh.
	feed.FailFees = errors.New("tracker down")
	quote, err := engine.Fresh(context.Background(), models.ChainTezos)
	assert.NoError(t, err)
	assert.True(t, time.Since(quote.FetchedAt) < time.Minute)
}

func TestFreshRefetchesExpiredCache(t *testing.T) {
	feed := &mock.Feed{}
	ledger := mock.NewLedger("0xbot")

	cfg := fees.DefaultConfig()
	cfg.MaxQuoteAge = 0
	engine := fees.NewEngine(feed, ledger, cfg)

	// Zero max age forces a re-fetch, which fails against the empty feed.
	_, err := engine.Fresh(context.Background(), models.ChainEthereum)
	assert.That(t, errors.Is(err, fees.ErrQuoteUnavailable))
}

func TestMinReturn(t *testing.T) {
	engine, _, _ := setupEngine()

	got := engine.MinReturn(decimal.NewFromInt(1000), decimal.RequireFromString("12.5"))
	assert.Equal(t, got.String(), "987.5")

	// Truncation toward the receiving party.
	got = engine.MinReturn(decimal.RequireFromString("1000.00000049"), decimal.NewFromInt(1))
	assert.Equal(t, got.String(), "999")
}
