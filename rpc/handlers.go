package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tezexlabs/coordinator/coordinator"
	"github.com/tezexlabs/coordinator/dispatcher"
	"github.com/tezexlabs/coordinator/fees"
	"github.com/tezexlabs/coordinator/models"
	"github.com/tezexlabs/coordinator/registry"
)

type handlers struct {
	session *coordinator.Session
}

func newHandlers(session *coordinator.Session) *handlers {
	return &handlers{session: session}
}

// swapResponse is the wire shape of a registry record.
type swapResponse struct {
	HashedSecret string  `json:"hashed_secret"`
	OriginChain  string  `json:"origin_chain"`
	Value        string  `json:"value"`
	MinReturn    string  `json:"min_return"`
	Exact        *string `json:"exact,omitempty"`
	RefundTime   string  `json:"refund_time"`
	State        string  `json:"state"`
}

func toSwapResponse(record models.SwapRecord) swapResponse {
	resp := swapResponse{
		HashedSecret: record.HashedSecret,
		OriginChain:  record.OriginChain.String(),
		Value:        record.Value.String(),
		MinReturn:    record.MinReturn.String(),
		RefundTime:   record.RefundTime.UTC().Format(time.RFC3339),
		State:        record.State.String(),
	}
	if record.Exact != nil {
		exact := record.Exact.String()
		resp.Exact = &exact
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		Logger.Error().Err(err).Msg("failed to encode response")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps core failures to HTTP statuses.
func writeError(w http.ResponseWriter, operation string, err error) {
	requestFailures.WithLabelValues(operation).Inc()

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrUnknownSwap):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicateSwap):
		status = http.StatusConflict
	case errors.Is(err, fees.ErrQuoteUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, dispatcher.ErrSwapCreationFailed):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func parseChain(name string) (models.Chain, bool) {
	switch name {
	case models.ChainEthereum.String():
		return models.ChainEthereum, true
	case models.ChainTezos.String():
		return models.ChainTezos, true
	}
	return 0, false
}

func (h *handlers) listSwaps(w http.ResponseWriter, r *http.Request) {
	records := h.session.Registry.Snapshot()
	out := make([]swapResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toSwapResponse(record))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getSwap(w http.ResponseWriter, r *http.Request) {
	record, err := h.session.Registry.Get(chi.URLParam(r, "hashedSecret"))
	if err != nil {
		writeError(w, "get_swap", err)
		return
	}
	writeJSON(w, http.StatusOK, toSwapResponse(record))
}

type originateRequest struct {
	Origin string `json:"origin"`
	Value  string `json:"value"`
}

func (h *handlers) originate(w http.ResponseWriter, r *http.Request) {
	var req originateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	origin, ok := parseChain(req.Origin)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "origin must be ethereum or tezos"})
		return
	}
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid value"})
		return
	}

	record, err := h.session.Dispatcher.Originate(r.Context(), origin, value)
	if err != nil {
		writeError(w, "originate", err)
		return
	}
	swapsOriginated.WithLabelValues(origin.String()).Inc()
	writeJSON(w, http.StatusCreated, toSwapResponse(record))
}

type acceptRequest struct {
	Origin string `json:"origin"`
}

func (h *handlers) accept(w http.ResponseWriter, r *http.Request) {
	hashedSecret := chi.URLParam(r, "hashedSecret")

	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	origin, ok := parseChain(req.Origin)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "origin must be ethereum or tezos"})
		return
	}

	// The waiting swap must still be in the latest snapshot of the origin
	// chain's open list.
	for _, waiting := range h.session.WaitingSwaps(origin) {
		if waiting.HashedSecret != hashedSecret {
			continue
		}
		record, err := h.session.Dispatcher.Accept(r.Context(), origin, waiting)
		if err != nil {
			writeError(w, "accept", err)
			return
		}
		swapsAccepted.WithLabelValues(origin.String()).Inc()
		writeJSON(w, http.StatusOK, toSwapResponse(record))
		return
	}
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "swap not open for counterparty"})
}

type quoteResponse struct {
	OriginChain string          `json:"origin_chain"`
	Reward      string          `json:"reward"`
	BotFee      string          `json:"bot_fee"`
	TxFee       models.TxFees   `json:"tx_fee"`
	Stats       models.BotStats `json:"stats"`
	FetchedAt   string          `json:"fetched_at"`
}

func (h *handlers) quote(w http.ResponseWriter, r *http.Request) {
	origin, ok := parseChain(r.URL.Query().Get("origin"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "origin must be ethereum or tezos"})
		return
	}

	quote, err := h.session.Engine.Fresh(r.Context(), origin)
	if err != nil {
		writeError(w, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		OriginChain: quote.OriginChain.String(),
		Reward:      quote.Reward.String(),
		BotFee:      quote.BotFee.String(),
		TxFee:       quote.TxFee,
		Stats:       quote.Stats,
		FetchedAt:   quote.FetchedAt.UTC().Format(time.RFC3339),
	})
}

func (h *handlers) balances(w http.ResponseWriter, r *http.Request) {
	balances := h.session.Balances()
	out := make(map[string]coordinator.ChainBalances, len(balances))
	for c, b := range balances {
		out[c.String()] = b
	}
	writeJSON(w, http.StatusOK, out)
}

type waitingResponse struct {
	HashedSecret string `json:"hashed_secret"`
	Initiator    string `json:"initiator"`
	Value        string `json:"value"`
	RefundTime   string `json:"refund_time"`
}

func (h *handlers) waiting(w http.ResponseWriter, r *http.Request) {
	origin, ok := parseChain(r.URL.Query().Get("origin"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "origin must be ethereum or tezos"})
		return
	}

	swaps := h.session.WaitingSwaps(origin)
	out := make([]waitingResponse, 0, len(swaps))
	for _, desc := range swaps {
		out = append(out, waitingResponse{
			HashedSecret: desc.HashedSecret,
			Initiator:    desc.Initiator,
			Value:        desc.Value.String(),
			RefundTime:   desc.RefundTime.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
