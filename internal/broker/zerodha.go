package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "options-terminal/internal/errors"
	"options-terminal/internal/models"
)

// instrumentCacheTTL bounds how long the NFO instrument dump is reused
// before a refetch. Zerodha publishes it once per day.
const instrumentCacheTTL = 6 * time.Hour

// KiteBroker implements Broker against Zerodha Kite Connect.
type KiteBroker struct {
	client    *kiteconnect.Client
	apiKey    string
	apiSecret string
	tokenPath string

	mu            sync.RWMutex
	authenticated bool
	instruments   []kiteconnect.Instrument
	fetchedAt     time.Time
}

// KiteConfig holds Kite Connect credentials for one instance.
type KiteConfig struct {
	APIKey    string
	APISecret string
	TokenPath string
}

// NewKiteBroker creates a Kite Connect broker and loads any saved session
// from disk.
func NewKiteBroker(cfg KiteConfig) *KiteBroker {
	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		home, _ := os.UserHomeDir()
		tokenPath = filepath.Join(home, ".config", "options-terminal", "session.json")
	}

	kb := &KiteBroker{
		client:    kiteconnect.New(cfg.APIKey),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		tokenPath: tokenPath,
	}
	_ = kb.loadSession()
	return kb
}

type sessionData struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LoginURL returns the Kite Connect OAuth URL.
func (k *KiteBroker) LoginURL() string {
	return k.client.GetLoginURL()
}

// CompleteLogin exchanges the OAuth request token for a session and
// persists it.
func (k *KiteBroker) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := k.client.GenerateSession(requestToken, k.apiSecret)
	if err != nil {
		return fmt.Errorf("generating session: %w", err)
	}

	k.mu.Lock()
	k.authenticated = true
	k.mu.Unlock()
	k.client.SetAccessToken(session.AccessToken)

	return k.saveSession(session.AccessToken)
}

// Logout invalidates the session and removes the persisted token.
func (k *KiteBroker) Logout(ctx context.Context) error {
	k.mu.Lock()
	k.authenticated = false
	k.mu.Unlock()
	_ = os.Remove(k.tokenPath)
	return nil
}

// IsAuthenticated reports whether a session token is loaded.
func (k *KiteBroker) IsAuthenticated() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.authenticated
}

func (k *KiteBroker) loadSession() error {
	data, err := os.ReadFile(k.tokenPath)
	if err != nil {
		return err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}
	// Kite tokens expire at 6 AM IST the next day
	if time.Now().After(session.ExpiresAt) {
		return fmt.Errorf("session expired")
	}

	k.mu.Lock()
	k.authenticated = true
	k.mu.Unlock()
	k.client.SetAccessToken(session.AccessToken)
	return nil
}

func (k *KiteBroker) saveSession(accessToken string) error {
	if err := os.MkdirAll(filepath.Dir(k.tokenPath), 0700); err != nil {
		return err
	}

	loc, _ := time.LoadLocation("Asia/Kolkata")
	now := time.Now().In(loc)
	expiresAt := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, loc)

	data, err := json.Marshal(sessionData{AccessToken: accessToken, ExpiresAt: expiresAt})
	if err != nil {
		return err
	}
	return os.WriteFile(k.tokenPath, data, 0600)
}

// PlaceOrder submits a regular-variety order.
func (k *KiteBroker) PlaceOrder(ctx context.Context, order *models.Order) (*OrderResult, error) {
	if !k.IsAuthenticated() {
		return nil, fmt.Errorf("not authenticated")
	}

	params := kiteconnect.OrderParams{
		Exchange:        string(order.Exchange),
		Tradingsymbol:   order.Symbol,
		TransactionType: string(order.Side),
		OrderType:       string(order.Type),
		Product:         string(order.Product),
		Quantity:        order.Quantity,
		Price:           order.Price,
		Validity:        "DAY",
		Tag:             order.Tag,
	}

	resp, err := k.client.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return nil, fmt.Errorf("placing order: %w", err)
	}
	return &OrderResult{
		OrderID: resp.OrderID,
		Status:  "PLACED",
		Message: "Order placed successfully",
	}, nil
}

// GetOpenPosition returns the signed net quantity for one contract, or 0
// when the book has no matching row.
func (k *KiteBroker) GetOpenPosition(ctx context.Context, symbol string, exchange models.Exchange, product models.ProductType) (int, error) {
	book, err := k.GetPositionBook(ctx)
	if err != nil {
		return 0, err
	}
	for _, entry := range book {
		if entry.Symbol == symbol && entry.Exchange == exchange && entry.Product == product {
			return entry.Quantity, nil
		}
	}
	return 0, nil
}

// GetPositionBook returns the net position book.
func (k *KiteBroker) GetPositionBook(ctx context.Context) ([]models.PositionEntry, error) {
	if !k.IsAuthenticated() {
		return nil, fmt.Errorf("not authenticated")
	}

	positions, err := k.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}

	entries := make([]models.PositionEntry, 0, len(positions.Net))
	for _, p := range positions.Net {
		if p.Quantity == 0 {
			continue
		}
		entries = append(entries, models.PositionEntry{
			Symbol:   p.Tradingsymbol,
			Exchange: models.Exchange(p.Exchange),
			Product:  models.ProductType(p.Product),
			Quantity: int(p.Quantity),
		})
	}
	return entries, nil
}

// GetQuote fetches last prices for the given instruments in one batch.
func (k *KiteBroker) GetQuote(ctx context.Context, refs []QuoteRef) ([]models.Quote, error) {
	if !k.IsAuthenticated() {
		return nil, fmt.Errorf("not authenticated")
	}
	if len(refs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = fmt.Sprintf("%s:%s", ref.Exchange, ref.Symbol)
	}

	ltps, err := k.client.GetLTP(keys...)
	if err != nil {
		return nil, fmt.Errorf("fetching quotes: %w", err)
	}

	now := time.Now()
	quotes := make([]models.Quote, 0, len(refs))
	for i, key := range keys {
		ltp, ok := ltps[key]
		if !ok {
			return nil, apperrors.Wrapf(apperrors.ErrQuoteUnavailable, "no quote for %s", key)
		}
		quotes = append(quotes, models.Quote{
			Symbol:    refs[i].Symbol,
			Exchange:  refs[i].Exchange,
			LastPrice: ltp.LastPrice,
			Timestamp: now,
		})
	}
	return quotes, nil
}

// GetOptionChain builds the chain for one underlying and expiry from the
// NFO instrument dump, pricing every contract in one LTP batch.
func (k *KiteBroker) GetOptionChain(ctx context.Context, underlying string, expiry time.Time) (*models.OptionChain, error) {
	instruments, err := k.nfoInstruments(ctx)
	if err != nil {
		return nil, err
	}

	spotQuotes, err := k.GetQuote(ctx, []QuoteRef{{Exchange: models.NSE, Symbol: underlying}})
	if err != nil {
		return nil, err
	}

	type pending struct {
		inst kiteconnect.Instrument
		key  string
	}
	var contracts []pending
	var keys []string
	for _, inst := range instruments {
		if inst.Name != underlying || !sameDay(inst.Expiry.Time, expiry) {
			continue
		}
		if inst.InstrumentType != "CE" && inst.InstrumentType != "PE" {
			continue
		}
		key := fmt.Sprintf("NFO:%s", inst.Tradingsymbol)
		contracts = append(contracts, pending{inst: inst, key: key})
		keys = append(keys, key)
	}
	if len(contracts) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrEmptyChain, "%s %s", underlying, expiry.Format("2006-01-02"))
	}

	ltps, err := k.client.GetLTP(keys...)
	if err != nil {
		return nil, fmt.Errorf("pricing option chain: %w", err)
	}

	strikeMap := make(map[float64]*models.OptionStrike)
	for _, c := range contracts {
		strike, ok := strikeMap[c.inst.StrikePrice]
		if !ok {
			strike = &models.OptionStrike{Strike: c.inst.StrikePrice}
			strikeMap[c.inst.StrikePrice] = strike
		}
		contract := &models.OptionContract{
			Symbol:   c.inst.Tradingsymbol,
			LotSize:  int(c.inst.LotSize),
			TickSize: c.inst.TickSize,
		}
		if ltp, ok := ltps[c.key]; ok {
			contract.LTP = ltp.LastPrice
		}
		if c.inst.InstrumentType == "CE" {
			strike.Call = contract
		} else {
			strike.Put = contract
		}
	}

	strikes := make([]models.OptionStrike, 0, len(strikeMap))
	for _, s := range strikeMap {
		strikes = append(strikes, *s)
	}
	sort.Slice(strikes, func(i, j int) bool { return strikes[i].Strike < strikes[j].Strike })

	return &models.OptionChain{
		Underlying: underlying,
		Exchange:   models.NFO,
		SpotPrice:  spotQuotes[0].LastPrice,
		Expiry:     expiry,
		Strikes:    strikes,
	}, nil
}

// GetExpiries lists distinct option expiries for an underlying, ascending.
func (k *KiteBroker) GetExpiries(ctx context.Context, underlying string) ([]time.Time, error) {
	instruments, err := k.nfoInstruments(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]time.Time)
	for _, inst := range instruments {
		if inst.Name != underlying || !strings.HasSuffix(inst.InstrumentType, "E") {
			continue
		}
		day := inst.Expiry.Time.Format("2006-01-02")
		if _, ok := seen[day]; !ok {
			seen[day] = inst.Expiry.Time
		}
	}

	expiries := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		expiries = append(expiries, t)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })
	return expiries, nil
}

// nfoInstruments returns the cached derivative instrument dump, refetching
// after the TTL.
func (k *KiteBroker) nfoInstruments(ctx context.Context) ([]kiteconnect.Instrument, error) {
	k.mu.RLock()
	if k.instruments != nil && time.Since(k.fetchedAt) < instrumentCacheTTL {
		cached := k.instruments
		k.mu.RUnlock()
		return cached, nil
	}
	k.mu.RUnlock()

	if !k.IsAuthenticated() {
		return nil, fmt.Errorf("not authenticated")
	}
	all, err := k.client.GetInstrumentsByExchange("NFO")
	if err != nil {
		return nil, fmt.Errorf("fetching instruments: %w", err)
	}

	k.mu.Lock()
	k.instruments = all
	k.fetchedAt = time.Now()
	k.mu.Unlock()
	return all, nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
