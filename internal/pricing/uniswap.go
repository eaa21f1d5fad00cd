package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/gatti/quote-cache/internal/platform/config"
	"github.com/gatti/quote-cache/internal/platform/observability"
)

// Uniswap V3 QuoterV2 ABI, quote methods only.
const quoterV2ABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IQuoterV2.QuoteExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "quoteExactInputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceX96After", "type": "uint160"},
			{"internalType": "uint32", "name": "initializedTicksCrossed", "type": "uint32"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint256", "name": "amount", "type": "uint256"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IQuoterV2.QuoteExactOutputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "quoteExactOutputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceX96After", "type": "uint160"},
			{"internalType": "uint32", "name": "initializedTicksCrossed", "type": "uint32"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var defaultFeeTiers = []uint32{500, 3000, 10000}

// chainQuoter is one chain's RPC client plus its QuoterV2 binding.
type chainQuoter struct {
	cfg    config.ChainConfig
	client *ethclient.Client
	quoter *bind.BoundContract
}

// UniswapFetcher fetches quotes from Uniswap V3 QuoterV2 contracts, one per
// configured chain. Each quote tries every configured fee tier and returns
// the best execution.
type UniswapFetcher struct {
	chains map[string]*chainQuoter
	logger *observability.Logger
}

// NewUniswapFetcher connects to every configured chain and binds its quoter.
func NewUniswapFetcher(chains []config.ChainConfig, logger *observability.Logger) (*UniswapFetcher, error) {
	parsed, err := abi.JSON(strings.NewReader(quoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}

	f := &UniswapFetcher{
		chains: make(map[string]*chainQuoter, len(chains)),
		logger: logger,
	}

	for _, chainCfg := range chains {
		client, err := ethclient.Dial(chainCfg.RPCURL)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("chain %s: failed to dial RPC: %w", chainCfg.Name, err)
		}

		quoterAddr := common.HexToAddress(chainCfg.QuoterAddress)
		f.chains[strings.ToLower(chainCfg.Name)] = &chainQuoter{
			cfg:    chainCfg,
			client: client,
			quoter: bind.NewBoundContract(quoterAddr, parsed, client, nil, nil),
		}
	}

	return f, nil
}

// quotePayload is the serialized quote shape. The cache engine never parses
// it; it round-trips through the store and out to clients as-is.
type quotePayload struct {
	Chain        string `json:"chain"`
	TokenIn      string `json:"tokenIn"`
	TokenOut     string `json:"tokenOut"`
	AmountIn     string `json:"amountIn"`
	AmountOut    string `json:"amountOut"`
	TradeType    string `json:"tradeType"`
	FeeTier      uint32 `json:"feeTier"`
	GasEstimate  string `json:"gasEstimate"`
	TicksCrossed uint32 `json:"ticksCrossed"`
	Source       string `json:"source"`
	FetchedAt    int64  `json:"fetchedAt"`
}

// FetchQuote quotes the request against the chain's QuoterV2, trying every
// configured fee tier and keeping the best result: highest output for
// exactIn, lowest input for exactOut.
func (f *UniswapFetcher) FetchQuote(ctx context.Context, req QuoteRequest) (json.RawMessage, error) {
	cq, ok := f.chains[strings.ToLower(req.Chain)]
	if !ok {
		return nil, fmt.Errorf("unknown chain: %s", req.Chain)
	}

	tokenIn, ok := cq.cfg.ResolveToken(req.TokenIn)
	if !ok {
		return nil, fmt.Errorf("unknown token %s on chain %s", req.TokenIn, req.Chain)
	}
	tokenOut, ok := cq.cfg.ResolveToken(req.TokenOut)
	if !ok {
		return nil, fmt.Errorf("unknown token %s on chain %s", req.TokenOut, req.Chain)
	}

	// The fixed side's amount is scaled by that token's decimals.
	fixedDecimals := tokenIn.Decimals
	if req.Direction == ExactOut {
		fixedDecimals = tokenOut.Decimals
	}
	amount, err := parseAmount(req.Amount, fixedDecimals)
	if err != nil {
		return nil, err
	}

	feeTiers := cq.cfg.FeeTiers
	if len(feeTiers) == 0 {
		feeTiers = defaultFeeTiers
	}

	var (
		best      *big.Int
		bestTier  uint32
		bestGas   *big.Int
		bestTicks uint32
		lastErr   error
	)

	inAddr := common.HexToAddress(tokenIn.Address)
	outAddr := common.HexToAddress(tokenOut.Address)

	for _, fee := range feeTiers {
		quoted, gas, ticks, err := cq.quote(ctx, inAddr, outAddr, amount, fee, req.Direction)
		if err != nil {
			// A pool may not exist at this fee tier; keep trying the rest.
			f.logger.LogDebug(ctx, "fee tier quote failed",
				"chain", req.Chain,
				"fee", fee,
				"error", err.Error(),
			)
			lastErr = err
			continue
		}

		if best == nil || better(quoted, best, req.Direction) {
			best = quoted
			bestTier = fee
			bestGas = gas
			bestTicks = ticks
		}
	}

	if best == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("all fee tiers failed: %w", lastErr)
		}
		return nil, fmt.Errorf("no fee tiers configured for chain %s", req.Chain)
	}

	payload := quotePayload{
		Chain:        strings.ToLower(req.Chain),
		TokenIn:      strings.ToLower(req.TokenIn),
		TokenOut:     strings.ToLower(req.TokenOut),
		TradeType:    string(req.Direction),
		FeeTier:      bestTier,
		GasEstimate:  bestGas.String(),
		TicksCrossed: bestTicks,
		Source:       "uniswap_v3",
		FetchedAt:    time.Now().UnixMilli(),
	}
	if req.Direction == ExactIn {
		payload.AmountIn = amount.String()
		payload.AmountOut = best.String()
	} else {
		payload.AmountIn = best.String()
		payload.AmountOut = amount.String()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quote: %w", err)
	}

	return raw, nil
}

// quote performs a single QuoterV2 static call at one fee tier.
func (cq *chainQuoter) quote(ctx context.Context, tokenIn, tokenOut common.Address, amount *big.Int, fee uint32, dir Direction) (quoted, gasEstimate *big.Int, ticksCrossed uint32, err error) {
	callOpts := &bind.CallOpts{Context: ctx}
	var result []interface{}

	if dir == ExactOut {
		params := struct {
			TokenIn           common.Address
			TokenOut          common.Address
			Amount            *big.Int
			Fee               *big.Int
			SqrtPriceLimitX96 *big.Int
		}{
			TokenIn:           tokenIn,
			TokenOut:          tokenOut,
			Amount:            amount,
			Fee:               big.NewInt(int64(fee)),
			SqrtPriceLimitX96: big.NewInt(0),
		}
		if err := cq.quoter.Call(callOpts, &result, "quoteExactOutputSingle", params); err != nil {
			return nil, nil, 0, fmt.Errorf("quoteExactOutputSingle failed: %w", err)
		}
	} else {
		params := struct {
			TokenIn           common.Address
			TokenOut          common.Address
			AmountIn          *big.Int
			Fee               *big.Int
			SqrtPriceLimitX96 *big.Int
		}{
			TokenIn:           tokenIn,
			TokenOut:          tokenOut,
			AmountIn:          amount,
			Fee:               big.NewInt(int64(fee)),
			SqrtPriceLimitX96: big.NewInt(0),
		}
		if err := cq.quoter.Call(callOpts, &result, "quoteExactInputSingle", params); err != nil {
			return nil, nil, 0, fmt.Errorf("quoteExactInputSingle failed: %w", err)
		}
	}

	// Both methods return (amount, sqrtPriceX96After, initializedTicksCrossed, gasEstimate).
	quoted = result[0].(*big.Int)
	ticksCrossed = result[2].(uint32)
	gasEstimate = result[3].(*big.Int)
	return quoted, gasEstimate, ticksCrossed, nil
}

// better reports whether a beats b for the given direction.
func better(a, b *big.Int, dir Direction) bool {
	if dir == ExactOut {
		return a.Cmp(b) < 0 // lowest required input wins
	}
	return a.Cmp(b) > 0 // highest output wins
}

// parseAmount converts a whole-unit decimal string to base token units.
func parseAmount(amount string, decimals int) (*big.Int, error) {
	whole, ok := new(big.Float).SetString(amount)
	if !ok || whole.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %q", amount)
	}

	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	scaled := new(big.Float).Mul(whole, scale)

	result, _ := scaled.Int(nil)
	if result.Sign() == 0 && whole.Sign() != 0 {
		return nil, fmt.Errorf("amount %q too small for %d decimals", amount, decimals)
	}
	return result, nil
}

// Close disconnects every chain client.
func (f *UniswapFetcher) Close() {
	for _, cq := range f.chains {
		if cq.client != nil {
			cq.client.Close()
		}
	}
}
