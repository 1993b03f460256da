package dispatcher_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/tezexlabs/coordinator/chain"
	"github.com/tezexlabs/coordinator/chain/mock"
	"github.com/tezexlabs/coordinator/dispatcher"
	"github.com/tezexlabs/coordinator/fees"
	"github.com/tezexlabs/coordinator/models"
	"github.com/tezexlabs/coordinator/registry"
)

func setupDispatcher() (*dispatcher.Dispatcher, *registry.Registry, *mock.Ledger, *mock.Ledger, *mock.Feed) {
	feed := &mock.Feed{
		Schedules: models.FeeSchedules{
			Ethereum: models.FeeSchedule{
				InitiateWait:    decimal.NewFromInt(1),
				AddCounterParty: decimal.NewFromInt(1),
				Redeem:          decimal.NewFromInt(1),
			},
			Tezos: models.FeeSchedule{
				InitiateWait:    decimal.NewFromInt(100),
				AddCounterParty: decimal.NewFromInt(100),
				Redeem:          decimal.NewFromInt(100),
			},
		},
		Prices: map[string]decimal.Decimal{
			"ETH-USD": decimal.NewFromInt(1),
			"XTZ-USD": decimal.NewFromInt(1),
		},
		Reward: decimal.NewFromInt(1),
	}

	eth := mock.NewLedger("0xbot")
	eth.GasPriceWei = big.NewInt(1) // negligible gas cost keeps fees tiny
	tez := mock.NewLedger("tz1bot")

	adapters := map[models.Chain]chain.LedgerAdapter{
		models.ChainEthereum: eth,
		models.ChainTezos:    tez,
	}

	reg := registry.New()
	engine := fees.NewEngine(feed, eth, fees.DefaultConfig())
	return dispatcher.New(reg, engine, adapters, 6), reg, eth, tez, feed
}

func TestOriginate(t *testing.T) {
	d, reg, eth, _, _ := setupDispatcher()
	eth.NextHashedSecret = "deadbeef"

	record, err := d.Originate(context.Background(), models.ChainEthereum, decimal.NewFromInt(1000))
	assert.NoError(t, err)

	assert.Equal(t, record.HashedSecret, "deadbeef")
	assert.Equal(t, record.OriginChain, models.ChainEthereum)
	assert.Equal(t, record.Value.String(), "1000")
	assert.Equal(t, record.State, models.SwapInitiated)
	assert.True(t, record.MinReturn.LessThan(record.Value))
	assert.True(t, record.RefundTime.After(time.Now()))

	assert.Equal(t, eth.InitiateCalls, 1)
	assert.Equal(t, reg.Len(), 1)
}

func TestOriginateRejectsNonPositiveValue(t *testing.T) {
	d, reg, eth, _, _ := setupDispatcher()

	_, err := d.Originate(context.Background(), models.ChainEthereum, decimal.Zero)
	assert.That(t, errors.Is(err, dispatcher.ErrSwapCreationFailed))
	assert.Equal(t, eth.InitiateCalls, 0)
	assert.Equal(t, reg.Len(), 0)
}

func TestOriginateRejectsValueBelowBotFee(t *testing.T) {
	d, reg, eth, _, _ := setupDispatcher()

	// The padded bot fee exceeds a microscopic request.
	_, err := d.Originate(context.Background(), models.ChainEthereum, decimal.RequireFromString("0.000001"))
	assert.That(t, errors.Is(err, dispatcher.ErrSwapCreationFailed))
	assert.Equal(t, eth.InitiateCalls, 0)
	assert.Equal(t, reg.Len(), 0)
}

func TestOriginateQuoteUnavailable(t *testing.T) {
	d, reg, eth, _, feed := setupDispatcher()
	feed.FailFees = errors.New("tracker down")

	_, err := d.Originate(context.Background(), models.ChainEthereum, decimal.NewFromInt(1000))
	assert.That(t, errors.Is(err, fees.ErrQuoteUnavailable))

	// No chain call and no registry entry without a usable quote.
	assert.Equal(t, eth.InitiateCalls, 0)
	assert.Equal(t, reg.Len(), 0)
}

func TestOriginateAdapterFailure(t *testing.T) {
	d, reg, eth, _, _ := setupDispatcher()

	// Prime the quote cache while the adapter still works; the second
	// origination then fails on the chain call alone.
	_, err := d.Originate(context.Background(), models.ChainEthereum, decimal.NewFromInt(1000))
	assert.NoError(t, err)

	eth.Err = errors.New("rpc refused")
	_, err = d.Originate(context.Background(), models.ChainEthereum, decimal.NewFromInt(500))
	assert.That(t, errors.Is(err, dispatcher.ErrSwapCreationFailed))
	assert.Equal(t, reg.Len(), 1)
}

func TestAccept(t *testing.T) {
	d, reg, _, tez, _ := setupDispatcher()

	waiting := chain.SwapDescriptor{
		HashedSecret: "cafe01",
		Initiator:    "0xinitiator",
		Value:        big.NewInt(250_000_000), // 250 tokens at 6 decimals
		RefundTime:   time.Now().Add(48 * time.Hour),
		State:        models.SwapInitiated,
	}

	record, err := d.Accept(context.Background(), models.ChainEthereum, waiting)
	assert.NoError(t, err)

	// Countering an Ethereum-origin swap locks the Tezos leg.
	assert.Equal(t, tez.CounterCalls, 1)
	assert.Equal(t, record.State, models.SwapCountered)
	assert.NotNil(t, record.Exact)
	assert.Equal(t, record.Exact.String(), "250")
	assert.Equal(t, reg.Len(), 1)
}

func TestAcceptAdapterFailure(t *testing.T) {
	d, reg, _, tez, _ := setupDispatcher()
	tez.Err = errors.New("signer down")

	waiting := chain.SwapDescriptor{
		HashedSecret: "cafe02",
		Value:        big.NewInt(1_000_000),
		RefundTime:   time.Now().Add(48 * time.Hour),
	}

	_, err := d.Accept(context.Background(), models.ChainEthereum, waiting)
	assert.That(t, errors.Is(err, dispatcher.ErrSwapCreationFailed))
	assert.Equal(t, reg.Len(), 0)
}
