package selection

import "strings"

// Synonym maps a query phrase onto the tool it names.
type Synonym struct {
	Phrase string
	Tool   string
}

// DefaultSynonyms is the fixed phrase table. Longer phrases are consulted
// before shorter ones regardless of their order here.
var DefaultSynonyms = []Synonym{
	{"earnings call transcript", "EARNINGS_CALL_TRANSCRIPT"},
	{"earnings transcript", "EARNINGS_CALL_TRANSCRIPT"},
	{"earnings call", "EARNINGS_CALL_TRANSCRIPT"},
	{"transcript", "EARNINGS_CALL_TRANSCRIPT"},
	{"earnings calendar", "EARNINGS_CALENDAR"},
	{"earnings estimates", "EARNINGS_ESTIMATES"},
	{"earnings estimate", "EARNINGS_ESTIMATES"},
	{"earnings", "EARNINGS"},

	{"current price", "GLOBAL_QUOTE"},
	{"quote", "GLOBAL_QUOTE"},
	{"historical prices", "TIME_SERIES_DAILY"},
	{"historical price", "TIME_SERIES_DAILY"},
	{"time series", "TIME_SERIES_DAILY"},
	{"intraday time series", "TIME_SERIES_INTRADAY"},
	{"intraday", "TIME_SERIES_INTRADAY"},

	{"company overview", "COMPANY_OVERVIEW"},
	{"company info", "COMPANY_OVERVIEW"},
	{"company information", "COMPANY_OVERVIEW"},
	{"news", "NEWS_SENTIMENT"},
	{"sentiment", "NEWS_SENTIMENT"},
	{"symbol search", "SYMBOL_SEARCH"},
	{"ticker search", "SYMBOL_SEARCH"},
}

// Category groups tools by name fragments and lists the query words that
// point at the group.
type Category struct {
	Name string
	// Fragments match tool names by substring.
	Fragments []string
	// Exact matches whole tool names.
	Exact []string
	// Keywords are query phrases that select this category.
	Keywords []string
	// Preferred members are tried first, in order, when the category wins.
	Preferred []string
}

// Contains reports whether tool belongs to the category.
func (c Category) Contains(tool string) bool {
	for _, e := range c.Exact {
		if tool == e {
			return true
		}
	}
	for _, f := range c.Fragments {
		if strings.Contains(tool, f) {
			return true
		}
	}
	return false
}

// OtherCategory names tools no category claims.
const OtherCategory = "Other"

// DefaultCategories is ordered: a tool belongs to the first category that
// contains it.
var DefaultCategories = []Category{
	{
		Name:      "Core Stock APIs",
		Fragments: []string{"TIME_SERIES", "QUOTE", "SEARCH", "MARKET"},
		Keywords:  []string{"stock", "share price", "price", "trading", "market"},
		Preferred: []string{"GLOBAL_QUOTE", "TIME_SERIES_DAILY"},
	},
	{
		Name:      "Options Data",
		Fragments: []string{"OPTIONS"},
		Keywords:  []string{"option", "option chain"},
		Preferred: []string{"REALTIME_OPTIONS", "HISTORICAL_OPTIONS"},
	},
	{
		Name:      "Alpha Intelligence",
		Fragments: []string{"NEWS", "EARNINGS", "GAINERS", "INSIDER", "ANALYTICS"},
		Keywords:  []string{"gainer", "loser", "mover", "insider", "analytics"},
		Preferred: []string{"TOP_GAINERS_LOSERS", "NEWS_SENTIMENT"},
	},
	{
		Name:      "Fundamental Data",
		Fragments: []string{"COMPANY", "INCOME", "BALANCE", "CASH", "LISTING", "IPO"},
		Keywords:  []string{"fundamental", "financials", "financial statement", "revenue", "profit", "ipo"},
		Preferred: []string{"COMPANY_OVERVIEW", "INCOME_STATEMENT"},
	},
	{
		Name:      "Forex",
		Fragments: []string{"FX"},
		Keywords:  []string{"forex", "fx", "exchange rate", "currency pair"},
		Preferred: []string{"FX_DAILY"},
	},
	{
		Name:      "Cryptocurrencies",
		Fragments: []string{"CURRENCY", "DIGITAL", "CRYPTO"},
		Keywords:  []string{"crypto", "cryptocurrency", "bitcoin", "btc", "ethereum", "digital currency"},
		Preferred: []string{"CURRENCY_EXCHANGE_RATE", "DIGITAL_CURRENCY_DAILY", "CRYPTO_INTRADAY"},
	},
	{
		Name:      "Commodities",
		Fragments: []string{"WTI", "BRENT", "GAS", "COPPER", "WHEAT", "CORN", "COFFEE", "SUGAR", "COTTON", "ALUMINUM", "COMMODITIES"},
		Keywords:  []string{"commodity", "commodities", "oil", "crude", "natural gas", "copper", "wheat", "corn", "coffee", "sugar", "cotton"},
		Preferred: []string{"WTI", "BRENT"},
	},
	{
		Name:      "Economic Indicators",
		Fragments: []string{"GDP", "TREASURY", "FEDERAL", "CPI", "INFLATION", "UNEMPLOYMENT", "NONFARM", "RETAIL_SALES", "DURABLES"},
		Keywords:  []string{"economy", "economic", "gdp", "interest rate", "treasury", "inflation", "unemployment", "jobs", "payroll", "retail sales"},
		Preferred: []string{"REAL_GDP", "INFLATION"},
	},
	{
		Name:      "Technical Indicators",
		Exact:     []string{"SMA", "EMA", "MACD", "RSI", "BBANDS"},
		Fragments: []string{"MA", "STOCH", "ADX", "MOM", "AROON"},
		Keywords:  []string{"indicator", "technical", "moving average", "rsi", "macd", "bollinger", "stochastic", "momentum"},
		Preferred: []string{"SMA", "RSI", "MACD", "BBANDS"},
	},
}

// CategoryOf returns the name of the first category containing tool, or
// OtherCategory.
func CategoryOf(tool string) string {
	for _, c := range DefaultCategories {
		if c.Contains(tool) {
			return c.Name
		}
	}
	return OtherCategory
}
