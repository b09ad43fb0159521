package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"options-terminal/internal/broker"
	"options-terminal/internal/models"
	"options-terminal/internal/store"
)

// PriceFeed polls each risk-enabled leg's broker for its last traded price
// and feeds it through the ledger. It is the tick source for the risk
// engine, which evaluates whatever price the ledger last recorded.
type PriceFeed struct {
	store    store.Store
	brokers  *broker.Registry
	ledger   *Ledger
	interval time.Duration
	log      zerolog.Logger
}

// NewPriceFeed creates a price feed over the given store and broker registry.
func NewPriceFeed(s store.Store, brokers *broker.Registry, l *Ledger, interval time.Duration, log zerolog.Logger) *PriceFeed {
	return &PriceFeed{
		store:    s,
		brokers:  brokers,
		ledger:   l,
		interval: interval,
		log:      log.With().Str("component", "price_feed").Logger(),
	}
}

// Run polls until ctx is cancelled.
func (f *PriceFeed) Run(ctx context.Context) {
	interval := f.interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	f.log.Info().Dur("interval", interval).Msg("Price feed started")
	for {
		select {
		case <-ctx.Done():
			f.log.Info().Msg("Price feed stopped")
			return
		case <-ticker.C:
			f.Poll(ctx)
		}
	}
}

// Poll fetches quotes for every risk-enabled leg, one batch per instance,
// and applies them as ticks. One instance's failure never blocks the rest.
func (f *PriceFeed) Poll(ctx context.Context) {
	legs, err := f.store.ListRiskEnabledLegs(ctx)
	if err != nil {
		f.log.Error().Err(err).Msg("Listing legs for price poll failed")
		return
	}

	byInstance := make(map[string][]models.Leg)
	for _, leg := range legs {
		if leg.NetQty == 0 {
			continue
		}
		byInstance[leg.InstanceID] = append(byInstance[leg.InstanceID], leg)
	}

	for instanceID, instLegs := range byInstance {
		b, err := f.brokers.Get(instanceID)
		if err != nil {
			f.log.Warn().Err(err).Str("instance", instanceID).Msg("No broker for price poll")
			continue
		}
		refs := make([]broker.QuoteRef, 0, len(instLegs))
		exchanges := make(map[string]models.Exchange, len(instLegs))
		for _, leg := range instLegs {
			refs = append(refs, broker.QuoteRef{Exchange: leg.Exchange, Symbol: leg.Symbol})
			exchanges[leg.Symbol] = leg.Exchange
		}
		quotes, err := b.GetQuote(ctx, refs)
		if err != nil {
			f.log.Warn().Err(err).Str("instance", instanceID).Msg("Quote poll failed")
			continue
		}
		for _, q := range quotes {
			if q.LastPrice <= 0 {
				continue
			}
			if err := f.ledger.ApplyTick(ctx, instanceID, q.Symbol, exchanges[q.Symbol], q.LastPrice); err != nil {
				f.log.Warn().Err(err).Str("symbol", q.Symbol).Msg("Tick apply failed")
			}
		}
	}
}
