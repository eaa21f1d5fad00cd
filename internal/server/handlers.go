package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gatti/quote-cache/internal/platform/resilience"
	"github.com/gatti/quote-cache/internal/pricing"
	"github.com/gatti/quote-cache/internal/quote"
)

// batchConcurrency bounds the fan-out of one POST /prices request.
const batchConcurrency = 8

// metadata is the per-result envelope attached to every quote response.
type metadata struct {
	Cached    bool   `json:"cached"`
	Stale     bool   `json:"stale"`
	VeryStale bool   `json:"veryStale"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type quoteResponse struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Metadata metadata        `json:"metadata"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"upstreams": s.engine.UpstreamHealth(),
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	req, err := parseQuoteRequest(
		r.PathValue("chain"),
		r.PathValue("tokenIn"),
		r.PathValue("tokenOut"),
		r.URL.Query().Get("amount"),
		r.URL.Query().Get("tradeType"),
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.engine.GetQuote(r.Context(), req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, resilience.ErrCircuitOpen) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}

	w.Header().Set("Cache-Control", cacheControl(result))
	writeJSON(w, http.StatusOK, quoteResponse{
		Success:  true,
		Data:     mergeEnvelope(result),
		Metadata: resultMetadata(result),
	})
}

type batchPair struct {
	ChainName string `json:"chainName"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	Amount    string `json:"amount"`
	TradeType string `json:"tradeType"`
}

type batchRequest struct {
	Pairs []batchPair `json:"pairs"`
}

type batchResult struct {
	ChainName string          `json:"chainName"`
	TokenIn   string          `json:"tokenIn"`
	TokenOut  string          `json:"tokenOut"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Metadata  *metadata       `json:"metadata,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// handlePrices serves a batch of quote reads with bounded concurrency.
// Failures are per-pair; the batch itself succeeds.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	var body batchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if len(body.Pairs) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("pairs is required"))
		return
	}

	results := make([]batchResult, len(body.Pairs))

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(batchConcurrency)

	for i, pair := range body.Pairs {
		g.Go(func() error {
			results[i] = batchResult{
				ChainName: pair.ChainName,
				TokenIn:   pair.TokenIn,
				TokenOut:  pair.TokenOut,
			}

			req, err := parseQuoteRequest(pair.ChainName, pair.TokenIn, pair.TokenOut, pair.Amount, pair.TradeType)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}

			result, err := s.engine.GetQuote(ctx, req)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}

			md := resultMetadata(result)
			results[i].Success = true
			results[i].Data = mergeEnvelope(result)
			results[i].Metadata = &md
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": results,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Metrics().Snapshot())
}

type pairBody struct {
	ChainName string `json:"chainName"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	Amount    string `json:"amount"`
	TradeType string `json:"tradeType"`
}

func (s *Server) handleAssignTier(w http.ResponseWriter, r *http.Request) {
	tier, err := quote.ParseTier(r.PathValue("tier"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var body pairBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if body.ChainName == "" || body.TokenIn == "" || body.TokenOut == "" {
		writeError(w, http.StatusBadRequest, errors.New("chainName, tokenIn and tokenOut are required"))
		return
	}

	s.engine.AssignTier(body.ChainName, body.TokenIn, body.TokenOut, tier)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"pair":    quote.PairKey(body.ChainName, body.TokenIn, body.TokenOut),
		"tier":    string(tier),
	})
}

func (s *Server) handleForceRefresh(w http.ResponseWriter, r *http.Request) {
	var body pairBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	req, err := parseQuoteRequest(body.ChainName, body.TokenIn, body.TokenOut, body.Amount, body.TradeType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.engine.ForceRefresh(r.Context(), req); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"key":     quote.Fingerprint(req),
	})
}

// parseQuoteRequest validates and canonicalizes request parameters. Amount
// defaults to "1000" to line up with the sweeper's conventional amount.
func parseQuoteRequest(chain, tokenIn, tokenOut, amount, tradeType string) (pricing.QuoteRequest, error) {
	if chain == "" || tokenIn == "" || tokenOut == "" {
		return pricing.QuoteRequest{}, errors.New("chain, tokenIn and tokenOut are required")
	}

	if amount == "" {
		amount = "1000"
	}
	if v, err := strconv.ParseFloat(amount, 64); err != nil || v <= 0 {
		return pricing.QuoteRequest{}, errors.New("amount must be a positive number")
	}

	direction, err := pricing.ParseDirection(tradeType)
	if err != nil {
		return pricing.QuoteRequest{}, err
	}

	return pricing.QuoteRequest{
		Chain:     chain,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		Amount:    amount,
		Direction: direction,
	}, nil
}

// mergeEnvelope folds the staleness flags into the quote payload when it is
// a JSON object; otherwise the raw payload passes through untouched and the
// flags live in metadata only.
func mergeEnvelope(result *quote.Result) json.RawMessage {
	if !result.Stale && !result.VeryStale {
		return result.Quote
	}

	var obj map[string]any
	if err := json.Unmarshal(result.Quote, &obj); err != nil {
		return result.Quote
	}

	if result.Stale {
		obj["stale"] = true
	}
	if result.VeryStale {
		obj["veryStale"] = true
		obj["error"] = result.Err
	}

	merged, err := json.Marshal(obj)
	if err != nil {
		return result.Quote
	}
	return merged
}

func resultMetadata(result *quote.Result) metadata {
	return metadata{
		Cached:    result.Cached,
		Stale:     result.Stale,
		VeryStale: result.VeryStale,
		Error:     result.Err,
		Timestamp: time.Now().UnixMilli(),
	}
}

// cacheControl shortens client caching as served data degrades.
func cacheControl(result *quote.Result) string {
	switch {
	case result.VeryStale:
		return "max-age=1"
	case result.Stale:
		return "max-age=5"
	default:
		return "max-age=30"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}
