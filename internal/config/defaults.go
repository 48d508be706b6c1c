package config

import "time"

// Default returns the built-in configuration. A YAML file only needs to set
// what differs from it.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/runs.db",
		},
		Dhan: Dhan{
			BaseURL:           "https://api.dhan.co/v2",
			InstrumentListURL: "https://images.dhan.co/api-data/api-scrip-master-detailed.csv",
			Timeout:           2 * time.Minute,
		},
		Alpaca: Alpaca{
			Feed: "sip",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Fetch: Fetch{
			CallDelay:         500 * time.Millisecond,
			CallTimeout:       2 * time.Minute,
			MaxAttempts:       4,
			BaseBackoff:       2 * time.Second,
			RateLimitAttempts: 5,
			RateLimitBackoff:  10 * time.Second,
		},
		Spot: SpotConfig{
			StartDate:  "2021-01-01",
			WindowDays: 90,
			Segment:    "IDX_I",
			Indices: []IndexConfig{
				{Name: "NIFTY_50", ShortName: "nifty"},
				{Name: "SENSEX", ShortName: "sensex"},
			},
		},
		Options: OptionsConfig{
			StartDate:    "2025-01-01",
			WindowDays:   30,
			ExpiryFlags:  []string{"WEEK", "MONTH"},
			ExpiryCodes:  []int{1, 2, 3}, // 1=near, 2=next, 3=far
			StrikeRange:  10,
			SpotFallback: true,
			Moneyness:    MoneynessConfig{ATMBand: 0, DeepBand: 5},
			Underlyings: []UnderlyingConfig{
				{Name: "NIFTY", MatchName: "NIFTY_50", ShortName: "nifty", Segment: "NSE_FNO", StrikeStep: 50},
				{Name: "SENSEX", MatchName: "SENSEX", ShortName: "sensex", Segment: "BSE_FNO", StrikeStep: 100},
			},
		},
		Stocks: StocksConfig{
			StartDate:  "2023-01-01",
			WindowDays: 90,
			MaxWorkers: 1,
			Provider:   "dhan",
			Exchange:   "NSE",
			Segment:    "NSE_EQ",
			Symbols:    Nifty100(),
		},
		IndexMatch: map[string]IndexMatchRule{
			"NIFTY_50": {
				Preferred: []string{"NIFTY 50"},
				Fallback:  []string{"NIFTY"},
				Exclude:   []string{"BANK", "FIN", "MIDCAP", "NEXT 50", "IT"},
				Exchange:  "NSE",
			},
			"SENSEX": {
				Preferred: []string{"S&P BSE SENSEX", "SENSEX"},
				Exclude:   []string{"MIDCAP", "SMALLCAP"},
				Exchange:  "BSE",
			},
		},
		Lock: Lock{
			TTL: 6 * time.Hour,
		},
		Notify: Notify{
			KafkaTopic: "market-data.dataset-updated",
		},
	}
}

// Nifty100 returns the NIFTY 100 constituents as of early 2025, spelled as
// the scrip master's SYMBOL_NAME for NSE equities.
func Nifty100() []string {
	return []string{
		"ABB", "ADANIENT", "ADANIENSOL", "ADANIGREEN", "ADANIPORTS",
		"ADANIPOWER", "AMBUJACEM", "APOLLOHOSP", "ASIANPAINT", "ATGL",
		"AXISBANK", "BAJAJ-AUTO", "BAJAJFINSV", "BAJAJHLDNG", "BAJFINANCE",
		"BANKBARODA", "BEL", "BHARTIARTL", "BHEL", "BOSCHLTD",
		"BPCL", "BRITANNIA", "CANBK", "CHOLAFIN", "CIPLA",
		"COALINDIA", "DABUR", "DIVISLAB", "DLF", "DMART",
		"DRREDDY", "EICHERMOT", "GAIL", "GODREJCP", "GRASIM",
		"HAL", "HAVELLS", "HCLTECH", "HDFCBANK", "HDFCLIFE",
		"HEROMOTOCO", "HINDALCO", "HINDUNILVR", "ICICIBANK", "ICICIGI",
		"ICICIPRULI", "INDHOTEL", "INDIGO", "INDUSINDBK", "INFY",
		"IOC", "IRCTC", "IRFC", "ITC", "JINDALSTEL",
		"JIOFIN", "JSWENERGY", "JSWSTEEL", "KOTAKBANK", "LT",
		"LICI", "LODHA", "LTIM", "LUPIN", "M&M",
		"MARICO", "MARUTI", "MOTHERSON", "NAUKRI", "NESTLEIND",
		"NHPC", "NTPC", "ONGC", "PAGEIND", "PFC",
		"PIDILITIND", "PNB", "POWERGRID", "RECLTD", "RELIANCE",
		"SAIL", "SBICARD", "SBILIFE", "SBIN", "SHREECEM",
		"SHRIRAMFIN", "SIEMENS", "SUNPHARMA", "TATACONSUM", "TATAMOTORS",
		"TATAPOWER", "TATASTEEL", "TCS", "TECHM", "TITAN",
		"TORNTPHARM", "TRENT", "TVSMOTOR", "ULTRACEMCO", "UNIONBANK",
		"UNITDSPR", "VEDL", "VBL", "WIPRO", "ZOMATO",
		"ZYDUSLIFE",
	}
}
