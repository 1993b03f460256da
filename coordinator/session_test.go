package coordinator_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/tezexlabs/coordinator/chain"
	"github.com/tezexlabs/coordinator/chain/mock"
	"github.com/tezexlabs/coordinator/coordinator"
	"github.com/tezexlabs/coordinator/fees"
	"github.com/tezexlabs/coordinator/models"
)

func testConfig() coordinator.Config {
	cfg := coordinator.DefaultConfig()
	// Tight cadence so the refresh tasks run within the test window.
	cfg.BalanceInterval = 20 * time.Millisecond
	cfg.WaitingInterval = 20 * time.Millisecond
	cfg.QuoteInterval = 20 * time.Millisecond
	cfg.SyncInterval = 20 * time.Millisecond
	return cfg
}

func setupSession(t *testing.T, eth, tez *mock.Ledger) *coordinator.Session {
	t.Helper()

	feed := &mock.Feed{
		Schedules: models.FeeSchedules{
			Ethereum: models.FeeSchedule{
				InitiateWait:    decimal.NewFromInt(1),
				AddCounterParty: decimal.NewFromInt(1),
				Redeem:          decimal.NewFromInt(1),
			},
			Tezos: models.FeeSchedule{
				InitiateWait:    decimal.NewFromInt(1),
				AddCounterParty: decimal.NewFromInt(1),
				Redeem:          decimal.NewFromInt(1),
			},
		},
		Prices: map[string]decimal.Decimal{
			"ETH-USD": decimal.NewFromInt(1),
			"XTZ-USD": decimal.NewFromInt(1),
		},
		Reward: decimal.NewFromInt(1),
	}

	adapters := map[models.Chain]chain.LedgerAdapter{
		models.ChainEthereum: eth,
		models.ChainTezos:    tez,
	}
	engine := fees.NewEngine(feed, eth, fees.DefaultConfig())

	session, err := coordinator.New(context.Background(), testConfig(), adapters, engine)
	assert.NoError(t, err)
	t.Cleanup(session.Close)
	return session
}

func TestSessionRebuildsRegistryFromChains(t *testing.T) {
	eth := mock.NewLedger("0xbot")
	tez := mock.NewLedger("tz1bot")

	exact := big.NewInt(95_000_000)
	eth.UserSwapList = []chain.SwapDescriptor{
		{
			HashedSecret: "rebuild-1",
			Value:        big.NewInt(100_000_000),
			RefundTime:   time.Now().Add(24 * time.Hour),
			State:        models.SwapInitiated,
		},
		{
			HashedSecret: "rebuild-2",
			Value:        big.NewInt(200_000_000),
			Exact:        exact,
			RefundTime:   time.Now().Add(24 * time.Hour),
			State:        models.SwapCountered,
		},
	}

	session := setupSession(t, eth, tez)

	assert.Equal(t, session.Registry.Len(), 2)

	fresh, err := session.Registry.Get("rebuild-1")
	assert.NoError(t, err)
	assert.Equal(t, fresh.State, models.SwapInitiated)
	assert.Equal(t, fresh.Value.String(), "100")

	countered, err := session.Registry.Get("rebuild-2")
	assert.NoError(t, err)
	assert.Equal(t, countered.State, models.SwapCountered)
	assert.NotNil(t, countered.Exact)
	assert.Equal(t, countered.Exact.String(), "95")
}

func TestSessionRefreshesBalances(t *testing.T) {
	eth := mock.NewLedger("0xbot")
	tez := mock.NewLedger("tz1bot")

	// 2.5 ether and 1000 tokens on the Ethereum side.
	eth.NativeBalance, _ = new(big.Int).SetString("2500000000000000000", 10)
	eth.TokenBalanceAmt = big.NewInt(1_000_000_000)
	tez.NativeBalance = big.NewInt(7_500_000)
	tez.TokenBalanceAmt = big.NewInt(42_000_000)

	session := setupSession(t, eth, tez)

	deadline := time.After(2 * time.Second)
	for {
		balances := session.Balances()
		if len(balances) == 2 {
			assert.Equal(t, balances[models.ChainEthereum].Native.String(), "2.5")
			assert.Equal(t, balances[models.ChainEthereum].Token.String(), "1000")
			assert.Equal(t, balances[models.ChainTezos].Native.String(), "7.5")
			assert.Equal(t, balances[models.ChainTezos].Token.String(), "42")
			return
		}
		select {
		case <-deadline:
			t.Fatal("balances never refreshed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSessionTracksWaitingSwaps(t *testing.T) {
	eth := mock.NewLedger("0xbot")
	tez := mock.NewLedger("tz1bot")

	tez.WaitingSwapList = []chain.SwapDescriptor{
		{
			HashedSecret: "open-1",
			Initiator:    "tz1someone",
			Value:        big.NewInt(5_000_000),
			RefundTime:   time.Now().Add(10 * time.Hour),
		},
	}

	session := setupSession(t, eth, tez)

	deadline := time.After(2 * time.Second)
	for {
		waiting := session.WaitingSwaps(models.ChainTezos)
		if len(waiting) == 1 {
			assert.Equal(t, waiting[0].HashedSecret, "open-1")
			assert.Equal(t, len(session.WaitingSwaps(models.ChainEthereum)), 0)
			return
		}
		select {
		case <-deadline:
			t.Fatal("waiting swaps never refreshed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSessionSyncMirrorsChainState(t *testing.T) {
	eth := mock.NewLedger("0xbot")
	tez := mock.NewLedger("tz1bot")

	desc := chain.SwapDescriptor{
		HashedSecret: "sync-1",
		Value:        big.NewInt(100_000_000),
		RefundTime:   time.Now().Add(24 * time.Hour),
		State:        models.SwapInitiated,
	}
	eth.UserSwapList = []chain.SwapDescriptor{desc}

	session := setupSession(t, eth, tez)

	// The swap settles on chain behind the session's back.
	desc.State = models.SwapRedeemed
	desc.Exact = big.NewInt(99_000_000)
	eth.SetUserSwaps([]chain.SwapDescriptor{desc})

	deadline := time.After(2 * time.Second)
	for {
		record, err := session.Registry.Get("sync-1")
		assert.NoError(t, err)
		if record.State == models.SwapRedeemed {
			assert.NotNil(t, record.Exact)
			return
		}
		select {
		case <-deadline:
			t.Fatalf("swap never synced, still %s", record.State)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSessionSyncSettlesCounteredSwap(t *testing.T) {
	eth := mock.NewLedger("0xbot")
	tez := mock.NewLedger("tz1bot")

	desc := chain.SwapDescriptor{
		HashedSecret: "settle-1",
		Value:        big.NewInt(100_000_000),
		Exact:        big.NewInt(95_000_000),
		RefundTime:   time.Now().Add(24 * time.Hour),
		State:        models.SwapCountered,
	}
	eth.UserSwapList = []chain.SwapDescriptor{desc}

	session := setupSession(t, eth, tez)

	record, err := session.Registry.Get("settle-1")
	assert.NoError(t, err)
	assert.Equal(t, record.State, models.SwapCountered)

	// The counterparty redeems on chain; the next poll must carry the
	// registry past Countered.
	desc.State = models.SwapRedeemed
	eth.SetUserSwaps([]chain.SwapDescriptor{desc})

	deadline := time.After(2 * time.Second)
	for {
		record, err := session.Registry.Get("settle-1")
		assert.NoError(t, err)
		if record.State == models.SwapRedeemed {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("countered swap never settled, still %s", record.State)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSessionSyncRefundsCounteredSwap(t *testing.T) {
	eth := mock.NewLedger("0xbot")
	tez := mock.NewLedger("tz1bot")

	desc := chain.SwapDescriptor{
		HashedSecret: "refund-1",
		Value:        big.NewInt(100_000_000),
		Exact:        big.NewInt(95_000_000),
		RefundTime:   time.Now().Add(24 * time.Hour),
		State:        models.SwapCountered,
	}
	eth.UserSwapList = []chain.SwapDescriptor{desc}

	session := setupSession(t, eth, tez)

	desc.State = models.SwapRefunded
	eth.SetUserSwaps([]chain.SwapDescriptor{desc})

	deadline := time.After(2 * time.Second)
	for {
		record, err := session.Registry.Get("refund-1")
		assert.NoError(t, err)
		if record.State == models.SwapRefunded {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("countered swap never refunded, still %s", record.State)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestQuoteFreshnessBoundMatchesRefreshInterval(t *testing.T) {
	// Fresh must never serve a quote older than one refresh cycle.
	assert.True(t, fees.DefaultConfig().MaxQuoteAge <= coordinator.DefaultConfig().QuoteInterval)
}

func TestSessionCloseStopsRefreshing(t *testing.T) {
	eth := mock.NewLedger("0xbot")
	tez := mock.NewLedger("tz1bot")

	session := setupSession(t, eth, tez)
	session.Close()

	// Close is idempotent and the accessors stay usable afterwards.
	session.Close()
	_ = session.Balances()
	_ = session.WaitingSwaps(models.ChainEthereum)
}
