// Package ethereum adapts the Ethereum leg: native/ERC-20 balances, gas
// price, and the HTLC swap contract (initiateWait, addCounterParty) through
// a keyed transactor. It is a thin contract-call wrapper; retry policy and
// swap state live elsewhere.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/tezexlabs/coordinator/chain"
	"github.com/tezexlabs/coordinator/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "ethereum").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "ethereum").Logger()
}

// swapABI covers the HTLC contract surface the coordinator touches.
const swapABI = `[
	{"name":"initiateWait","type":"function","inputs":[{"name":"_hashedSecret","type":"bytes32"},{"name":"_refundTimestamp","type":"uint256"},{"name":"_value","type":"uint256"},{"name":"_minReturn","type":"uint256"}],"outputs":[]},
	{"name":"addCounterParty","type":"function","inputs":[{"name":"_hashedSecret","type":"bytes32"},{"name":"_value","type":"uint256"}],"outputs":[]},
	{"name":"getUserSwaps","type":"function","stateMutability":"view","inputs":[{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"bytes32[]"}]},
	{"name":"getWaitingSwaps","type":"function","stateMutability":"view","inputs":[{"name":"_maxAge","type":"uint256"}],"outputs":[{"name":"","type":"bytes32[]"}]},
	{"name":"getSwap","type":"function","stateMutability":"view","inputs":[{"name":"_hashedSecret","type":"bytes32"}],"outputs":[{"name":"initiator","type":"address"},{"name":"participant","type":"address"},{"name":"value","type":"uint256"},{"name":"exact","type":"uint256"},{"name":"refundTimestamp","type":"uint256"},{"name":"state","type":"uint8"}]}
]`

const erc20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// contract swap states, as stored on chain.
const (
	contractWaiting   = 0
	contractCountered = 1
	contractRedeemed  = 2
	contractRefunded  = 3
)

// Config holds the Ethereum leg's connection parameters.
type Config struct {
	RPCURL         string
	ChainID        *big.Int
	SwapContract   string
	TokenContract  string
	PrivateKeyHex  string
	RefundWindow   time.Duration
	ConfirmTimeout time.Duration
}

// Client implements chain.LedgerAdapter and chain.GasPricer for Ethereum.
type Client struct {
	eth      *ethclient.Client
	swap     *bind.BoundContract
	token    *bind.BoundContract
	swapAddr common.Address

	key     *ecdsa.PrivateKey
	account common.Address
	chainID *big.Int

	refundWindow   time.Duration
	confirmTimeout time.Duration
}

var (
	_ chain.LedgerAdapter = (*Client)(nil)
	_ chain.GasPricer     = (*Client)(nil)
)

// NewClient dials the RPC endpoint and binds the swap and token contracts.
func NewClient(cfg Config) (*Client, error) {
	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ethereum RPC: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid ethereum private key: %w", err)
	}
	account := crypto.PubkeyToAddress(key.PublicKey)

	parsedSwap, err := abi.JSON(strings.NewReader(swapABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse swap ABI: %w", err)
	}
	parsedToken, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %w", err)
	}

	swapAddr := common.HexToAddress(cfg.SwapContract)
	client := &Client{
		eth:            eth,
		swap:           bind.NewBoundContract(swapAddr, parsedSwap, eth, eth, eth),
		token:          bind.NewBoundContract(common.HexToAddress(cfg.TokenContract), parsedToken, eth, eth, eth),
		swapAddr:       swapAddr,
		key:            key,
		account:        account,
		chainID:        cfg.ChainID,
		refundWindow:   cfg.RefundWindow,
		confirmTimeout: cfg.ConfirmTimeout,
	}

	log.Info().
		Str("account", account.Hex()).
		Str("swap_contract", swapAddr.Hex()).
		Msg("ethereum adapter initialized")
	return client, nil
}

// Account returns the configured account address.
func (c *Client) Account() string {
	return c.account.Hex()
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

func wrapRPCError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, chain.ErrAdapterTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Balance returns the native ETH balance in wei.
func (c *Client) Balance(ctx context.Context, account string) (*big.Int, error) {
	balance, err := c.eth.BalanceAt(ctx, common.HexToAddress(account), nil)
	if err != nil {
		return nil, wrapRPCError("balance query", err)
	}
	return balance, nil
}

// TokenBalance returns the ERC-20 swap token balance in raw units.
func (c *Client) TokenBalance(ctx context.Context, account string) (*big.Int, error) {
	var out []interface{}
	err := c.token.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", common.HexToAddress(account))
	if err != nil {
		return nil, wrapRPCError("token balance query", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf return type %T", out[0])
	}
	return balance, nil
}

// GasPrice returns the suggested gas price in wei.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, wrapRPCError("gas price query", err)
	}
	return price, nil
}

// getSwap reads one contract entry and converts it to a descriptor.
func (c *Client) getSwap(ctx context.Context, hashedSecret [32]byte) (chain.SwapDescriptor, error) {
	var out []interface{}
	err := c.swap.Call(&bind.CallOpts{Context: ctx}, &out, "getSwap", hashedSecret)
	if err != nil {
		return chain.SwapDescriptor{}, wrapRPCError("swap query", err)
	}

	initiator := out[0].(common.Address)
	participant := out[1].(common.Address)
	value := out[2].(*big.Int)
	exact := out[3].(*big.Int)
	refundTimestamp := out[4].(*big.Int)
	state := out[5].(uint8)

	desc := chain.SwapDescriptor{
		HashedSecret: "0x" + hex.EncodeToString(hashedSecret[:]),
		Initiator:    initiator.Hex(),
		Participant:  participant.Hex(),
		Value:        value,
		RefundTime:   time.Unix(refundTimestamp.Int64(), 0).UTC(),
		State:        contractState(state),
	}
	if exact.Sign() > 0 {
		desc.Exact = exact
	}
	return desc, nil
}

func contractState(state uint8) models.SwapState {
	switch state {
	case contractCountered:
		return models.SwapCountered
	case contractRedeemed:
		return models.SwapRedeemed
	case contractRefunded:
		return models.SwapRefunded
	default:
		return models.SwapInitiated
	}
}

func (c *Client) swapsByHashes(ctx context.Context, hashes [][32]byte) ([]chain.SwapDescriptor, error) {
	descriptors := make([]chain.SwapDescriptor, 0, len(hashes))
	for _, hash := range hashes {
		desc, err := c.getSwap(ctx, hash)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, desc)
	}
	return descriptors, nil
}

// UserSwaps lists the contract entries initiated by an account.
func (c *Client) UserSwaps(ctx context.Context, account string) ([]chain.SwapDescriptor, error) {
	var out []interface{}
	err := c.swap.Call(&bind.CallOpts{Context: ctx}, &out, "getUserSwaps", common.HexToAddress(account))
	if err != nil {
		return nil, wrapRPCError("user swaps query", err)
	}
	hashes, ok := out[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected getUserSwaps return type %T", out[0])
	}
	return c.swapsByHashes(ctx, hashes)
}

// WaitingSwaps lists entries still open for a counterparty.
func (c *Client) WaitingSwaps(ctx context.Context, maxAge time.Duration) ([]chain.SwapDescriptor, error) {
	var out []interface{}
	err := c.swap.Call(&bind.CallOpts{Context: ctx}, &out, "getWaitingSwaps", big.NewInt(int64(maxAge.Seconds())))
	if err != nil {
		return nil, wrapRPCError("waiting swaps query", err)
	}
	hashes, ok := out[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected getWaitingSwaps return type %T", out[0])
	}
	return c.swapsByHashes(ctx, hashes)
}

// newSecret draws a fresh swap secret and its digest.
func newSecret() (secret, hashedSecret [32]byte, err error) {
	if _, err = rand.Read(secret[:]); err != nil {
		return secret, hashedSecret, fmt.Errorf("failed to generate secret: %w", err)
	}
	hashedSecret = sha256.Sum256(secret[:])
	return secret, hashedSecret, nil
}

func (c *Client) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// waitMined blocks until the transaction confirms or the timeout elapses.
func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return wrapRPCError("confirmation wait", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return nil
}

// Initiate approves the token spend and locks the origin leg. The secret is
// generated here; only its digest leaves the adapter.
func (c *Client) Initiate(ctx context.Context, value, minReturn *big.Int) (*chain.InitiateResult, error) {
	_, hashedSecret, err := newSecret()
	if err != nil {
		return nil, err
	}
	refundTime := time.Now().Add(c.refundWindow).UTC().Truncate(time.Second)

	opts, err := c.transactor(ctx)
	if err != nil {
		return nil, err
	}

	approveTx, err := c.token.Transact(opts, "approve", c.swapAddr, value)
	if err != nil {
		return nil, wrapRPCError("token approve", err)
	}
	if err := c.waitMined(ctx, approveTx); err != nil {
		return nil, err
	}

	tx, err := c.swap.Transact(opts, "initiateWait",
		hashedSecret, big.NewInt(refundTime.Unix()), value, minReturn)
	if err != nil {
		return nil, wrapRPCError("initiate", err)
	}
	if err := c.waitMined(ctx, tx); err != nil {
		return nil, err
	}

	log.Info().
		Str("hashed_secret", "0x"+hex.EncodeToString(hashedSecret[:])).
		Str("tx", tx.Hash().Hex()).
		Msg("swap initiated on ethereum")
	return &chain.InitiateResult{
		HashedSecret: "0x" + hex.EncodeToString(hashedSecret[:]),
		RefundTime:   refundTime,
	}, nil
}

// AddCounterParty locks the counter leg against an existing swap.
func (c *Client) AddCounterParty(ctx context.Context, hashedSecret string, amount *big.Int) (*chain.CounterResult, error) {
	hash, err := parseHash(hashedSecret)
	if err != nil {
		return nil, err
	}

	opts, err := c.transactor(ctx)
	if err != nil {
		return nil, err
	}

	approveTx, err := c.token.Transact(opts, "approve", c.swapAddr, amount)
	if err != nil {
		return nil, wrapRPCError("token approve", err)
	}
	if err := c.waitMined(ctx, approveTx); err != nil {
		return nil, err
	}

	tx, err := c.swap.Transact(opts, "addCounterParty", hash, amount)
	if err != nil {
		return nil, wrapRPCError("add counterparty", err)
	}
	if err := c.waitMined(ctx, tx); err != nil {
		return nil, err
	}

	// The contract stores the exact committed amount; read it back.
	desc, err := c.getSwap(ctx, hash)
	if err != nil {
		return nil, err
	}
	exact := desc.Exact
	if exact == nil {
		exact = amount
	}

	log.Info().
		Str("hashed_secret", hashedSecret).
		Str("tx", tx.Hash().Hex()).
		Msg("counterparty added on ethereum")
	return &chain.CounterResult{Exact: exact}, nil
}

func parseHash(hashedSecret string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(hashedSecret, "0x"))
	if err != nil || len(raw) != 32 {
		return hash, fmt.Errorf("invalid hashed secret %q", hashedSecret)
	}
	copy(hash[:], raw)
	return hash, nil
}
