package models

import "time"

// OptionChain represents an option chain for one underlying and expiry.
type OptionChain struct {
	Underlying string
	Exchange   Exchange
	SpotPrice  float64
	Expiry     time.Time
	Strikes    []OptionStrike
}

// OptionStrike represents a single strike in the option chain.
type OptionStrike struct {
	Strike float64
	Call   *OptionContract
	Put    *OptionContract
}

// OptionContract represents one listed contract at a strike.
type OptionContract struct {
	Symbol   string
	LotSize  int
	LTP      float64
	OI       int64
	TickSize float64
}

// ContractRef identifies a resolved, listed option contract.
type ContractRef struct {
	Symbol     string
	Exchange   Exchange
	Underlying string
	Expiry     time.Time
	Right      OptionRight
	Strike     float64
	LotSize    int
}
