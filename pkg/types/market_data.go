package types

import "time"

type OHLCV struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// PriceTick is a single price observation for a symbol, as delivered by the
// exchange layer. Ticks carry their exchange timestamp so the ledger can
// discard out-of-order updates.
type PriceTick struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}
