package models

// Query parameters for the HTTP endpoints.

type StockTableRequest struct {
	Sort  string `query:"sort" json:"sort" default:"ticker_symbol" validate:"oneof=ticker_symbol company_name sector market_cap p_e_ratio fii_pct dii_pct owner_pct price rsi macd_signal sentiment_score status held_pct_insiders trailing_pe"`
	Order string `query:"order" json:"order" default:"asc" validate:"oneof=asc desc"`
}

type RunsRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=200"`
}
