// Package pricing provides the upstream quote source consumed by the cache
// engine. The engine treats quote payloads as opaque JSON; only this package
// knows their shape.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Direction is the trade direction of a quote request. Canonical values are
// lower case; the wire format accepts exactIn/exactOut case-insensitively.
type Direction string

const (
	// ExactIn quotes the output amount for a fixed input.
	ExactIn Direction = "exactin"
	// ExactOut quotes the input amount for a fixed output.
	ExactOut Direction = "exactout"
)

// ParseDirection parses a tradeType string. Empty defaults to ExactIn.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "exactin":
		return ExactIn, nil
	case "exactout":
		return ExactOut, nil
	default:
		return "", fmt.Errorf("invalid trade type: %q", s)
	}
}

// QuoteRequest names the quote to fetch. Amount is a decimal string in whole
// token units of the fixed side.
type QuoteRequest struct {
	Chain     string
	TokenIn   string
	TokenOut  string
	Amount    string
	Direction Direction
}

// PairKey returns the canonical lowercased chain:tokenIn:tokenOut key.
func (r QuoteRequest) PairKey() string {
	return strings.ToLower(r.Chain + ":" + r.TokenIn + ":" + r.TokenOut)
}

// Fetcher fetches a quote from the upstream source. Calls are slow (seconds)
// and may fail; callers are expected to gate them with a circuit breaker and
// a per-call timeout.
type Fetcher interface {
	FetchQuote(ctx context.Context, req QuoteRequest) (json.RawMessage, error)
}
