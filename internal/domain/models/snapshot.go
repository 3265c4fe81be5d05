package models

// NewsItem is one headline attached to a ticker. Time is unix seconds.
type NewsItem struct {
	Title     string  `json:"title"`
	Link      string  `json:"link"`
	Publisher string  `json:"publisher"`
	Time      float64 `json:"time"`
}

// NewsIndex maps ticker symbol to its headlines.
type NewsIndex map[string][]NewsItem

// UncategorizedSector groups rows whose sector is NULL or empty.
const UncategorizedSector = "Uncategorized"

// TickerSnapshot is one ticker's metadata joined with its signal row for
// the snapshot date. Nullable columns are pointers so they render as null.
type TickerSnapshot struct {
	TickerSymbol    string     `json:"ticker_symbol"`
	CompanyName     *string    `json:"company_name"`
	Sector          *string    `json:"sector"`
	MarketCap       *float64   `json:"market_cap"`
	PERatio         *float64   `json:"p_e_ratio"`
	FIIPct          *float64   `json:"fii_pct"`
	DIIPct          *float64   `json:"dii_pct"`
	OwnerPct        *float64   `json:"owner_pct"`
	Price           *float64   `json:"price"`
	RSI             *float64   `json:"rsi"`
	MACDSignal      *string    `json:"macd_signal"`
	SentimentScore  *float64   `json:"sentiment_score"`
	Status          *string    `json:"status"`
	HeldPctInsiders *float64   `json:"held_pct_insiders"`
	TrailingPE      *float64   `json:"trailing_pe"`
	NewsList        []NewsItem `json:"news_list"`
}

// SectorKey returns the grouping key for the row.
func (t *TickerSnapshot) SectorKey() string {
	if t.Sector == nil || *t.Sector == "" {
		return UncategorizedSector
	}
	return *t.Sector
}

// Snapshot is the latest-date view grouped by sector. encoding/json writes
// map keys sorted, so sector order in the response is alphabetical.
type Snapshot struct {
	Sectors map[string][]TickerSnapshot `json:"data"`
	Date    string                      `json:"date"`
}

// Rows returns the total number of ticker rows.
func (s *Snapshot) Rows() int {
	n := 0
	for _, rows := range s.Sectors {
		n += len(rows)
	}
	return n
}

// SnapshotTable is the same snapshot flattened and sorted for the table view.
type SnapshotTable struct {
	Rows  []TickerSnapshot `json:"data"`
	Date  string           `json:"date"`
	Sort  string           `json:"sort"`
	Order string           `json:"order"`
}
