package model

import "time"

// PriceBar is one daily bar for a security (or the benchmark, which is
// shipped in the same shape). One per (security, trading day).
type PriceBar struct {
	SecurityID string    `json:"security_id"`
	TradeDate  time.Time `json:"trade_date"`
	Close      float64   `json:"close"`
	AdjClose   float64   `json:"adj_close"` // dividend/split adjusted
	Volume     float64   `json:"volume"`
}
