// Package models provides domain models for the terminal core.
package models

import (
	"time"
)

// Exchange represents a stock exchange segment.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // F&O
	CDS Exchange = "CDS" // Currency
	MCX Exchange = "MCX" // Commodity
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the inverse side, used when closing exposure.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeStopLoss OrderType = "SL"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductCNC  ProductType = "CNC"  // Delivery
	ProductNRML ProductType = "NRML" // F&O Normal
)

// OptionRight identifies the option right of a contract.
type OptionRight string

const (
	RightCall OptionRight = "CE"
	RightPut  OptionRight = "PE"
)

// InstrumentKind classifies a tradable leg.
type InstrumentKind string

const (
	KindEquity  InstrumentKind = "EQ"
	KindFutures InstrumentKind = "FUT"
	KindOption  InstrumentKind = "OPT"
)

// TradeMode selects how a quick action is translated into contracts.
type TradeMode string

const (
	TradeModeDirect  TradeMode = "DIRECT"
	TradeModeFutures TradeMode = "FUTURES"
	TradeModeOptions TradeMode = "OPTIONS"
)

// QuickAction is a user action on the quick order panel.
type QuickAction string

const (
	ActionBuy     QuickAction = "BUY"
	ActionSell    QuickAction = "SELL"
	ActionBuyCE   QuickAction = "BUY_CE"
	ActionSellCE  QuickAction = "SELL_CE"
	ActionBuyPE   QuickAction = "BUY_PE"
	ActionSellPE  QuickAction = "SELL_PE"
	ActionExit    QuickAction = "EXIT"
	ActionExitAll QuickAction = "EXIT_ALL"
)

// OperatingMode is the default bias of options actions.
type OperatingMode string

const (
	ModeBuyer  OperatingMode = "BUYER"  // long premium
	ModeWriter OperatingMode = "WRITER" // short premium
)

// StrikePolicy controls whether the traded strike re-resolves per action.
type StrikePolicy string

const (
	StrikeFloat  StrikePolicy = "FLOAT"  // re-resolve ATM each action
	StrikeAnchor StrikePolicy = "ANCHOR" // pin the first-resolved strike
)

// StrikeOffset is a relative strike selector.
type StrikeOffset string

const (
	OffsetITM3 StrikeOffset = "ITM3"
	OffsetITM2 StrikeOffset = "ITM2"
	OffsetITM1 StrikeOffset = "ITM1"
	OffsetATM  StrikeOffset = "ATM"
	OffsetOTM1 StrikeOffset = "OTM1"
	OffsetOTM2 StrikeOffset = "OTM2"
	OffsetOTM3 StrikeOffset = "OTM3"
)

// Steps returns the signed number of chain positions from ATM.
// Negative values move into the money for the requested right.
func (o StrikeOffset) Steps() (int, bool) {
	switch o {
	case OffsetITM3:
		return -3, true
	case OffsetITM2:
		return -2, true
	case OffsetITM1:
		return -1, true
	case OffsetATM:
		return 0, true
	case OffsetOTM1:
		return 1, true
	case OffsetOTM2:
		return 2, true
	case OffsetOTM3:
		return 3, true
	}
	return 0, false
}

// ExitScope is the breadth of a protective exit.
type ExitScope string

const (
	ScopeLeg   ExitScope = "LEG"   // the triggering leg only
	ScopeType  ExitScope = "TYPE"  // all legs of one right at the expiry
	ScopeIndex ExitScope = "INDEX" // all legs of the underlying at the expiry
)

// TriggerKind identifies what fired a protective exit.
type TriggerKind string

const (
	TriggerTarget       TriggerKind = "TARGET_HIT"
	TriggerStop         TriggerKind = "STOP_HIT"
	TriggerTrailingStop TriggerKind = "TRAILING_STOP_HIT"
	TriggerManual       TriggerKind = "MANUAL"
)

// Instance is one independent broker connection.
type Instance struct {
	ID           string
	Name         string
	BrokerName   string
	WatchlistID  string
	Active       bool
	OrderEnabled bool
	Analyzer     bool // paper/analyzer mode, excluded from broadcasts
	CreatedAt    time.Time
}

// Quote represents a market quote for one instrument.
type Quote struct {
	Symbol    string
	Exchange  Exchange
	LastPrice float64
	Timestamp time.Time
}

// Order is an order as dispatched to a broker instance.
type Order struct {
	Symbol              string
	Exchange            Exchange
	Side                OrderSide
	Type                OrderType
	Product             ProductType
	Quantity            int
	Price               float64
	CurrentPositionSize int
	Tag                 string
}

// PositionEntry is one row of a broker position book.
type PositionEntry struct {
	Symbol   string
	Exchange Exchange
	Product  ProductType
	Quantity int
}
