// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"
	"time"

	"options-terminal/internal/models"
)

// Broker defines the per-instance interface consumed by the terminal core.
// Every call is asynchronous from the core's point of view and may fail
// independently; failures never propagate across unrelated legs or instances.
type Broker interface {
	// Orders
	PlaceOrder(ctx context.Context, order *models.Order) (*OrderResult, error)

	// Positions
	GetOpenPosition(ctx context.Context, symbol string, exchange models.Exchange, product models.ProductType) (int, error)
	GetPositionBook(ctx context.Context) ([]models.PositionEntry, error)

	// Market data
	GetQuote(ctx context.Context, refs []QuoteRef) ([]models.Quote, error)
	GetOptionChain(ctx context.Context, underlying string, expiry time.Time) (*models.OptionChain, error)

	// Expiries lists available option expiries for an underlying, ascending.
	GetExpiries(ctx context.Context, underlying string) ([]time.Time, error)
}

// QuoteRef identifies one instrument in a quote request.
type QuoteRef struct {
	Exchange models.Exchange
	Symbol   string
}

// OrderResult represents the result of an order placement.
type OrderResult struct {
	OrderID string
	Status  string
	Message string
}
