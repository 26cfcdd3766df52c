package transform

// TokenTable is the static lookup data used during enrichment: price
// feed ids for the oracle, per-token decimals, and the stablecoin set.
// It is injected into the components that need it so tests can
// substitute their own tables.
type TokenTable struct {
	// FeedIDs maps lowercase token addresses to CoinGecko ids.
	FeedIDs map[string]string

	// SymbolFeedIDs maps lowercase token symbols to CoinGecko ids, for
	// identifiers that are not 0x-addresses.
	SymbolFeedIDs map[string]string

	// Decimals maps lowercase token identifiers (addresses or symbols)
	// to their ERC-20 decimals.
	Decimals map[string]int32

	// Stable is the set of lowercase stablecoin identifiers (addresses
	// or symbols).
	Stable map[string]bool
}

// DefaultDecimals is used for tokens absent from the table. 18 is the
// predominant ERC-20 convention; this is a deliberate, documented
// approximation that can misprice exotic tokens with other decimals.
const DefaultDecimals int32 = 18

// DefaultTokenTable covers the common high-volume Ethereum mainnet
// tokens, avoiding an oracle round trip for the bulk of swaps.
func DefaultTokenTable() *TokenTable {
	return &TokenTable{
		FeedIDs: map[string]string{
			"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": "weth",
			"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": "usd-coin",
			"0xdac17f958d2ee523a2206206994597c13d831ec7": "tether",
			"0x2260fac5e5542a773aa44fbcfedf7c193bc2c599": "wrapped-bitcoin",
			"0x6b175474e89094c44da98b954eedeac495271d0f": "dai",
			"0x1f9840a85d5af5bf1d1762f925bdaddc4201f984": "uniswap",
			"0x514910771af9ca656af840dff83e8264ecf986ca": "chainlink",
			"0x7fc66500c84a76ad7e9c93437bfc5ac33e2ddae9": "aave",
			"0xd533a949740bb3306d119cc777fa900ba034cd52": "curve-dao-token",
			"0x9f8f72aa9304c8b593d555f12ef6589cc3a579a2": "maker",
		},
		SymbolFeedIDs: map[string]string{
			"eth":  "ethereum",
			"weth": "weth",
			"btc":  "bitcoin",
			"wbtc": "wrapped-bitcoin",
			"usdc": "usd-coin",
			"usdt": "tether",
			"dai":  "dai",
			"uni":  "uniswap",
			"link": "chainlink",
			"aave": "aave",
			"crv":  "curve-dao-token",
			"mkr":  "maker",
		},
		Decimals: map[string]int32{
			"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": 18, // WETH
			"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": 6,  // USDC
			"0xdac17f958d2ee523a2206206994597c13d831ec7": 6,  // USDT
			"0x6b175474e89094c44da98b954eedeac495271d0f": 18, // DAI
			"0x2260fac5e5542a773aa44fbcfedf7c193bc2c599": 8,  // WBTC
			"0x1f9840a85d5af5bf1d1762f925bdaddc4201f984": 18, // UNI
			"0x514910771af9ca656af840dff83e8264ecf986ca": 18, // LINK
			"0x7fc66500c84a76ad7e9c93437bfc5ac33e2ddae9": 18, // AAVE
			"0xd533a949740bb3306d119cc777fa900ba034cd52": 18, // CRV
			"0x9f8f72aa9304c8b593d555f12ef6589cc3a579a2": 18, // MKR
			"weth": 18,
			"usdc": 6,
			"usdt": 6,
			"dai":  18,
			"wbtc": 8,
			"uni":  18,
			"link": 18,
			"aave": 18,
			"crv":  18,
			"mkr":  18,
		},
		Stable: map[string]bool{
			"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": true, // USDC
			"0xdac17f958d2ee523a2206206994597c13d831ec7": true, // USDT
			"0x6b175474e89094c44da98b954eedeac495271d0f": true, // DAI
			"0x0000000000085d4780b73119b644ae5ecd22b376": true, // TUSD
			"0x8e870d67f660d95d5be530380d0ec0bd388289e1": true, // USDP
			"usdc": true,
			"usdt": true,
			"dai":  true,
			"tusd": true,
			"usdp": true,
		},
	}
}

// FeedID resolves a token identifier (0x-address or symbol) to a price
// feed id. Unknown identifiers are passed through unchanged on the
// assumption that they are already feed ids.
func (t *TokenTable) FeedID(identifier string) string {
	if isAddress(identifier) {
		if id, ok := t.FeedIDs[identifier]; ok {
			return id
		}
		return identifier
	}
	if id, ok := t.SymbolFeedIDs[identifier]; ok {
		return id
	}
	return identifier
}

// TokenDecimals returns the decimals for a token identifier (address
// or symbol), falling back to DefaultDecimals when it is not listed.
func (t *TokenTable) TokenDecimals(identifier string) int32 {
	if d, ok := t.Decimals[identifier]; ok {
		return d
	}
	return DefaultDecimals
}

// IsStable reports whether the token identifier (address or symbol) is
// a known stablecoin. Symbol-identified swaps must hit the same
// stable-side volume rule as address-identified ones.
func (t *TokenTable) IsStable(identifier string) bool {
	return t.Stable[identifier]
}

func isAddress(s string) bool {
	return len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
