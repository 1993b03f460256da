package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Chain identifies one of the two ledgers a swap can originate on.
type Chain int

const (
	ChainEthereum Chain = iota
	ChainTezos
)

// Other returns the opposite leg of a swap direction.
func (c Chain) Other() Chain {
	if c == ChainEthereum {
		return ChainTezos
	}
	return ChainEthereum
}

func (c Chain) String() string {
	switch c {
	case ChainEthereum:
		return "ethereum"
	case ChainTezos:
		return "tezos"
	}
	return "unknown"
}

// GasPriced reports whether transaction cost on the chain scales with a
// network gas price. Tezos fee entries are already denominated in mutez.
func (c Chain) GasPriced() bool {
	return c == ChainEthereum
}

// SwapState is the locally mirrored lifecycle stage of a swap. The on-chain
// contracts are the source of truth; this value only tracks what the
// coordinator has observed.
type SwapState int

const (
	// SwapInitiated is the sole entry state: the origin leg is locked,
	// no counterparty yet.
	SwapInitiated SwapState = iota

	// SwapCountered means a counterparty locked the second leg.
	SwapCountered

	// SwapRedeemed is terminal: the secret was revealed and both legs settled.
	SwapRedeemed

	// SwapRefunded is terminal: the refund timeout elapsed and funds were
	// reclaimed.
	SwapRefunded
)

func (s SwapState) String() string {
	switch s {
	case SwapInitiated:
		return "initiated"
	case SwapCountered:
		return "countered"
	case SwapRedeemed:
		return "redeemed"
	case SwapRefunded:
		return "refunded"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s SwapState) Terminal() bool {
	return s == SwapRedeemed || s == SwapRefunded
}

// SwapRecord is the coordinator's view of one in-flight swap, keyed by its
// hashed secret. Value and MinReturn are denominated in the destination
// chain's display unit.
type SwapRecord struct {
	// HashedSecret is the hex digest binding both chains' contract
	// instances for this swap. Never reused.
	HashedSecret string

	// OriginChain is the chain the swap was initiated on.
	OriginChain Chain

	// Value is the gross amount the initiator is owed on the destination
	// chain.
	Value decimal.Decimal

	// MinReturn is the minimum the initiator is guaranteed to receive.
	// Fixed at creation; renegotiating requires a new swap.
	MinReturn decimal.Decimal

	// Exact is the amount actually committed by a counterparty. Nil until
	// the state advances past SwapInitiated.
	Exact *decimal.Decimal

	// RefundTime is the absolute time after which the initiator may reclaim
	// funds unilaterally from the origin-chain contract.
	RefundTime time.Time

	State SwapState
}

// BotStats is an aggregate snapshot of counterparty-bot activity published by
// the fee tracker.
type BotStats struct {
	ActiveBots    int             `json:"active_bots"`
	TotalSwaps    int             `json:"total_swaps"`
	TotalVolume   decimal.Decimal `json:"total_volume"`
	MaxEthereum   decimal.Decimal `json:"max_eth"`
	MaxTezosToken decimal.Decimal `json:"max_usdtz"`
}

// FeeSchedule holds the per-operation cost entries for one chain. Ethereum
// entries are gas unit counts, Tezos entries are mutez.
type FeeSchedule struct {
	InitiateWait    decimal.Decimal `json:"initiateWait"`
	AddCounterParty decimal.Decimal `json:"addCounterParty"`
	Redeem          decimal.Decimal `json:"redeem"`
}

// FeeSchedules pairs the two chains' schedules as returned by a single
// tracker call.
type FeeSchedules struct {
	Ethereum FeeSchedule `json:"ethereum"`
	Tezos    FeeSchedule `json:"tezos"`
}

// Schedule selects the entry for a chain.
func (f FeeSchedules) Schedule(c Chain) FeeSchedule {
	if c == ChainEthereum {
		return f.Ethereum
	}
	return f.Tezos
}

// TxFees is the estimated on-chain cost per leg for the initiator, each in
// the chain's native display unit.
type TxFees struct {
	Ethereum decimal.Decimal `json:"ethereum"`
	Tezos    decimal.Decimal `json:"tezos"`
}

// FeeQuote is a time-bounded snapshot of the economic terms for a prospective
// counter-swap. Consumers treat it as immutable and request a fresh quote
// rather than mutate one in place.
type FeeQuote struct {
	// OriginChain is the direction the quote was computed for.
	OriginChain Chain

	// Reward is the bot incentive rate, in percent.
	Reward decimal.Decimal

	// BotFee is the counterparty's required compensation, in destination
	// display units, truncated to destination precision.
	BotFee decimal.Decimal

	// TxFee is the initiator's expected on-chain cost per leg.
	TxFee TxFees

	// Stats is the bot-activity snapshot fetched alongside the quote.
	Stats BotStats

	// FetchedAt bounds the quote's freshness.
	FetchedAt time.Time
}
