package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"options-terminal/internal/models"
)

// PaperBroker implements the Broker interface against in-memory state. It
// backs analyzer-mode instances and the test suite: orders mutate a simulated
// position book instead of reaching an exchange.
type PaperBroker struct {
	mu sync.RWMutex

	positions map[string]*models.PositionEntry
	quotes    map[string]float64
	chains    map[string]*models.OptionChain
	expiries  map[string][]time.Time
	placed    []models.Order

	orderCounter int

	// PlaceErr, when set, makes every PlaceOrder call fail. Used to simulate
	// a rejecting or unreachable instance.
	PlaceErr error
}

// NewPaperBroker creates a paper broker with empty state.
func NewPaperBroker() *PaperBroker {
	return &PaperBroker{
		positions: make(map[string]*models.PositionEntry),
		quotes:    make(map[string]float64),
		chains:    make(map[string]*models.OptionChain),
		expiries:  make(map[string][]time.Time),
	}
}

func positionKey(symbol string, exchange models.Exchange, product models.ProductType) string {
	return symbol + "|" + string(exchange) + "|" + string(product)
}

func chainKey(underlying string, expiry time.Time) string {
	return underlying + "|" + expiry.Format("2006-01-02")
}

// SetQuote seeds the last price for a symbol.
func (p *PaperBroker) SetQuote(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[symbol] = price
}

// SetChain seeds an option chain for an underlying and expiry.
func (p *PaperBroker) SetChain(chain *models.OptionChain) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chains[chainKey(chain.Underlying, chain.Expiry)] = chain
	exps := p.expiries[chain.Underlying]
	for _, e := range exps {
		if e.Equal(chain.Expiry) {
			return
		}
	}
	exps = append(exps, chain.Expiry)
	sort.Slice(exps, func(i, j int) bool { return exps[i].Before(exps[j]) })
	p.expiries[chain.Underlying] = exps
}

// SetPosition seeds an open position.
func (p *PaperBroker) SetPosition(symbol string, exchange models.Exchange, product models.ProductType, qty int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[positionKey(symbol, exchange, product)] = &models.PositionEntry{
		Symbol:   symbol,
		Exchange: exchange,
		Product:  product,
		Quantity: qty,
	}
}

// PlacedOrders returns a copy of all orders placed so far.
func (p *PaperBroker) PlacedOrders() []models.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Order, len(p.placed))
	copy(out, p.placed)
	return out
}

// PlaceOrder applies the order to the simulated position book.
func (p *PaperBroker) PlaceOrder(ctx context.Context, order *models.Order) (*OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.PlaceErr != nil {
		return nil, p.PlaceErr
	}
	if order.Quantity <= 0 {
		return &OrderResult{Status: "REJECTED", Message: "quantity must be positive"}, nil
	}

	key := positionKey(order.Symbol, order.Exchange, order.Product)
	pos, ok := p.positions[key]
	if !ok {
		pos = &models.PositionEntry{
			Symbol:   order.Symbol,
			Exchange: order.Exchange,
			Product:  order.Product,
		}
		p.positions[key] = pos
	}
	if order.Side == models.OrderSideBuy {
		pos.Quantity += order.Quantity
	} else {
		pos.Quantity -= order.Quantity
	}

	p.orderCounter++
	p.placed = append(p.placed, *order)

	return &OrderResult{
		OrderID: fmt.Sprintf("PAPER-%06d", p.orderCounter),
		Status:  "COMPLETE",
	}, nil
}

// GetOpenPosition returns the simulated net quantity for one symbol.
func (p *PaperBroker) GetOpenPosition(ctx context.Context, symbol string, exchange models.Exchange, product models.ProductType) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if pos, ok := p.positions[positionKey(symbol, exchange, product)]; ok {
		return pos.Quantity, nil
	}
	return 0, nil
}

// GetPositionBook returns all simulated positions.
func (p *PaperBroker) GetPositionBook(ctx context.Context) ([]models.PositionEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	book := make([]models.PositionEntry, 0, len(p.positions))
	for _, pos := range p.positions {
		book = append(book, *pos)
	}
	return book, nil
}

// GetQuote returns seeded last prices.
func (p *PaperBroker) GetQuote(ctx context.Context, refs []QuoteRef) ([]models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	quotes := make([]models.Quote, 0, len(refs))
	for _, ref := range refs {
		price, ok := p.quotes[ref.Symbol]
		if !ok {
			return nil, fmt.Errorf("no quote for %s", ref.Symbol)
		}
		quotes = append(quotes, models.Quote{
			Symbol:    ref.Symbol,
			Exchange:  ref.Exchange,
			LastPrice: price,
			Timestamp: time.Now(),
		})
	}
	return quotes, nil
}

// GetOptionChain returns a seeded chain.
func (p *PaperBroker) GetOptionChain(ctx context.Context, underlying string, expiry time.Time) (*models.OptionChain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	chain, ok := p.chains[chainKey(underlying, expiry)]
	if !ok {
		return nil, fmt.Errorf("no chain for %s %s", underlying, expiry.Format("2006-01-02"))
	}
	return chain, nil
}

// GetExpiries returns seeded expiries for an underlying, ascending.
func (p *PaperBroker) GetExpiries(ctx context.Context, underlying string) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	exps, ok := p.expiries[underlying]
	if !ok || len(exps) == 0 {
		return nil, fmt.Errorf("no expiries for %s", underlying)
	}
	out := make([]time.Time, len(exps))
	copy(out, exps)
	return out, nil
}
