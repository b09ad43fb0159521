package utils

import "time"

// MarketSession describes where the clock sits relative to NSE trading
// hours.
type MarketSession string

const (
	SessionClosed       MarketSession = "CLOSED"
	SessionPreOpen      MarketSession = "PRE_OPEN"
	SessionOpen         MarketSession = "OPEN"
	SessionSquareOffWin MarketSession = "SQUARE_OFF_WINDOW"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// SessionAt classifies a moment against NSE equity/derivative hours:
// pre-open 9:00-9:15, regular 9:15-15:30, with the intraday square-off
// window starting at 15:00.
func SessionAt(t time.Time) MarketSession {
	local := t.In(IndiaLocation)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return SessionClosed
	}

	minutes := local.Hour()*60 + local.Minute()
	switch {
	case minutes >= 540 && minutes < 555:
		return SessionPreOpen
	case minutes >= 900 && minutes < 930:
		return SessionSquareOffWin
	case minutes >= 555 && minutes < 900:
		return SessionOpen
	default:
		return SessionClosed
	}
}

// CurrentSession classifies the current wall-clock time.
func CurrentSession() MarketSession {
	return SessionAt(time.Now())
}

// IsMarketOpen reports whether orders can trade right now.
func IsMarketOpen() bool {
	s := CurrentSession()
	return s == SessionOpen || s == SessionSquareOffWin
}

// NextMarketOpen returns the next 9:15 IST open after t, skipping
// weekends. Exchange holidays are not modeled.
func NextMarketOpen(t time.Time) time.Time {
	local := t.In(IndiaLocation)
	next := time.Date(local.Year(), local.Month(), local.Day(), 9, 15, 0, 0, IndiaLocation)
	if !local.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// MarketCloseOn returns the 15:30 IST close on t's date.
func MarketCloseOn(t time.Time) time.Time {
	local := t.In(IndiaLocation)
	return time.Date(local.Year(), local.Month(), local.Day(), 15, 30, 0, 0, IndiaLocation)
}
