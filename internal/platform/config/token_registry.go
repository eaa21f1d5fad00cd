package config

import "strings"

// builtinTokens is a registry of well-known tokens per chain, used to fill
// in symbols a chain's configured token map omits. Addresses are checksummed
// mainnet deployments.
var builtinTokens = map[string]map[string]TokenConfig{
	"ethereum": {
		"weth": {Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
		"wbtc": {Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8},
		"link": {Address: "0x514910771AF9Ca656af840dff83E8264EcF986CA", Decimals: 18},
		"uni":  {Address: "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984", Decimals: 18},
		"usdc": {Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		"usdt": {Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		"dai":  {Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
	},
	"unichain": {
		"weth": {Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		"usdc": {Address: "0x078D782b760474a361dDA0AF3839290b0EF57AD6", Decimals: 6},
	},
}

// ResolveToken looks up a token's metadata for a chain: the chain's
// configured token map first, then the built-in registry. Symbols are
// matched case-insensitively.
func (c *ChainConfig) ResolveToken(symbol string) (TokenConfig, bool) {
	sym := strings.ToLower(symbol)

	for name, token := range c.Tokens {
		if strings.ToLower(name) == sym {
			return token, true
		}
	}

	if chainTokens, ok := builtinTokens[strings.ToLower(c.Name)]; ok {
		if token, ok := chainTokens[sym]; ok {
			return token, true
		}
	}

	return TokenConfig{}, false
}
