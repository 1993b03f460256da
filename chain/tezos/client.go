// Package tezos adapts the Tezos leg. Reads go through an indexer REST API
// (account balance, FA1.2 token balance, HTLC big-map entries); writes go
// through a signer sidecar that wraps the wallet, forges and injects the
// operation, and returns the result.
package tezos

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/tezexlabs/coordinator/chain"
	"github.com/tezexlabs/coordinator/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "tezos").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "tezos").Logger()
}

// Config holds the Tezos leg's connection parameters.
type Config struct {
	// IndexerURL is the REST indexer base URL.
	IndexerURL string
	// SignerURL is the signer sidecar base URL.
	SignerURL string
	// SwapContract is the HTLC contract address (KT1...).
	SwapContract string
	// TokenContract is the FA1.2 token contract address.
	TokenContract string
	// Account is the wallet address (tz1...) the signer operates.
	Account string
	// RefundWindow is how far in the future new swaps set their refund time.
	RefundWindow time.Duration
	// Timeout is the HTTP request timeout.
	Timeout time.Duration
}

// Client implements chain.LedgerAdapter for Tezos.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

var _ chain.LedgerAdapter = (*Client)(nil)

// NewClient creates a Tezos adapter.
func NewClient(cfg Config) *Client {
	log.Info().
		Str("account", cfg.Account).
		Str("swap_contract", cfg.SwapContract).
		Msg("tezos adapter initialized")
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

// Account returns the configured wallet address.
func (c *Client) Account() string {
	return c.cfg.Account
}

func wrapHTTPError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, chain.ErrAdapterTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Client) getJSON(ctx context.Context, baseURL, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SignerURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// Balance returns the native balance in mutez.
func (c *Client) Balance(ctx context.Context, account string) (*big.Int, error) {
	var accountResponse struct {
		Balance int64 `json:"balance"`
	}
	err := c.getJSON(ctx, c.cfg.IndexerURL, "/v1/accounts/"+url.PathEscape(account), &accountResponse)
	if err != nil {
		return nil, wrapHTTPError("balance query", err)
	}
	return big.NewInt(accountResponse.Balance), nil
}

// TokenBalance returns the FA1.2 token balance in raw units.
func (c *Client) TokenBalance(ctx context.Context, account string) (*big.Int, error) {
	var balances []struct {
		Balance string `json:"balance"`
	}
	path := fmt.Sprintf("/v1/tokens/balances?account=%s&token.contract=%s",
		url.QueryEscape(account), url.QueryEscape(c.cfg.TokenContract))
	if err := c.getJSON(ctx, c.cfg.IndexerURL, path, &balances); err != nil {
		return nil, wrapHTTPError("token balance query", err)
	}
	if len(balances) == 0 {
		return big.NewInt(0), nil
	}
	balance, ok := new(big.Int).SetString(balances[0].Balance, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token balance %q", balances[0].Balance)
	}
	return balance, nil
}

// swapEntry is one HTLC big-map entry as served by the indexer.
type swapEntry struct {
	Key   string `json:"key"`
	Value struct {
		Initiator       string `json:"initiator"`
		Participant     string `json:"participant"`
		Value           string `json:"value"`
		Exact           string `json:"exact"`
		RefundTimestamp string `json:"refundTimestamp"`
		State           int    `json:"state"`
	} `json:"value"`
}

func (e swapEntry) descriptor() (chain.SwapDescriptor, error) {
	value, ok := new(big.Int).SetString(e.Value.Value, 10)
	if !ok {
		return chain.SwapDescriptor{}, fmt.Errorf("invalid swap value %q", e.Value.Value)
	}
	refundTime, err := time.Parse(time.RFC3339, e.Value.RefundTimestamp)
	if err != nil {
		return chain.SwapDescriptor{}, fmt.Errorf("invalid refund timestamp %q: %w", e.Value.RefundTimestamp, err)
	}

	desc := chain.SwapDescriptor{
		HashedSecret: e.Key,
		Initiator:    e.Value.Initiator,
		Participant:  e.Value.Participant,
		Value:        value,
		RefundTime:   refundTime.UTC(),
		State:        bigMapState(e.Value.State),
	}
	if e.Value.Exact != "" && e.Value.Exact != "0" {
		exact, ok := new(big.Int).SetString(e.Value.Exact, 10)
		if !ok {
			return chain.SwapDescriptor{}, fmt.Errorf("invalid exact value %q", e.Value.Exact)
		}
		desc.Exact = exact
	}
	return desc, nil
}

func bigMapState(state int) models.SwapState {
	switch state {
	case 1:
		return models.SwapCountered
	case 2:
		return models.SwapRedeemed
	case 3:
		return models.SwapRefunded
	default:
		return models.SwapInitiated
	}
}

func (c *Client) swapEntries(ctx context.Context, filter string) ([]chain.SwapDescriptor, error) {
	var entries []swapEntry
	path := fmt.Sprintf("/v1/contracts/%s/bigmaps/swaps/keys?active=true%s",
		url.PathEscape(c.cfg.SwapContract), filter)
	if err := c.getJSON(ctx, c.cfg.IndexerURL, path, &entries); err != nil {
		return nil, wrapHTTPError("swap entries query", err)
	}

	descriptors := make([]chain.SwapDescriptor, 0, len(entries))
	for _, entry := range entries {
		desc, err := entry.descriptor()
		if err != nil {
			log.Warn().Err(err).Str("key", entry.Key).Msg("skipping malformed swap entry")
			continue
		}
		descriptors = append(descriptors, desc)
	}
	return descriptors, nil
}

// UserSwaps lists the contract entries initiated by an account.
func (c *Client) UserSwaps(ctx context.Context, account string) ([]chain.SwapDescriptor, error) {
	return c.swapEntries(ctx, "&value.initiator="+url.QueryEscape(account))
}

// WaitingSwaps lists entries still open for a counterparty whose refund time
// leaves at least maxAge of margin.
func (c *Client) WaitingSwaps(ctx context.Context, maxAge time.Duration) ([]chain.SwapDescriptor, error) {
	cutoff := time.Now().Add(maxAge).UTC().Format(time.RFC3339)
	filter := "&value.state=0&value.refundTimestamp.gt=" + url.QueryEscape(cutoff)
	return c.swapEntries(ctx, filter)
}

// Initiate locks the origin leg through the signer sidecar. The secret is
// generated here; only its digest leaves the adapter.
func (c *Client) Initiate(ctx context.Context, value, minReturn *big.Int) (*chain.InitiateResult, error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	digest := sha256.Sum256(secret[:])
	hashedSecret := hex.EncodeToString(digest[:])
	refundTime := time.Now().Add(c.cfg.RefundWindow).UTC().Truncate(time.Second)

	payload := map[string]any{
		"contract":   c.cfg.SwapContract,
		"entrypoint": "initiateWait",
		"args": map[string]any{
			"hashedSecret":    hashedSecret,
			"refundTimestamp": refundTime.Format(time.RFC3339),
			"value":           value.String(),
			"minReturn":       minReturn.String(),
		},
	}
	var result struct {
		OpHash string `json:"op_hash"`
	}
	if err := c.postJSON(ctx, "/inject", payload, &result); err != nil {
		return nil, wrapHTTPError("initiate", err)
	}

	log.Info().
		Str("hashed_secret", hashedSecret).
		Str("op_hash", result.OpHash).
		Msg("swap initiated on tezos")
	return &chain.InitiateResult{
		HashedSecret: hashedSecret,
		RefundTime:   refundTime,
	}, nil
}

// AddCounterParty locks the counter leg against an existing swap.
func (c *Client) AddCounterParty(ctx context.Context, hashedSecret string, amount *big.Int) (*chain.CounterResult, error) {
	payload := map[string]any{
		"contract":   c.cfg.SwapContract,
		"entrypoint": "addCounterParty",
		"args": map[string]any{
			"hashedSecret": hashedSecret,
			"value":        amount.String(),
		},
	}
	var result struct {
		OpHash string `json:"op_hash"`
		Exact  string `json:"exact"`
	}
	if err := c.postJSON(ctx, "/inject", payload, &result); err != nil {
		return nil, wrapHTTPError("add counterparty", err)
	}

	exact := amount
	if result.Exact != "" {
		parsed, ok := new(big.Int).SetString(result.Exact, 10)
		if ok {
			exact = parsed
		}
	}

	log.Info().
		Str("hashed_secret", hashedSecret).
		Str("op_hash", result.OpHash).
		Msg("counterparty added on tezos")
	return &chain.CounterResult{Exact: exact}, nil
}
