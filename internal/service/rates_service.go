package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"somahub/internal/domain"
	"somahub/internal/metrics"
	"somahub/pkg/cache"
	"somahub/pkg/rates"
)

// fallbackRates are conservative hard-coded rates to KES, used when the live
// lookup is down. Payment initiation must not fail because a non-critical
// rate service is unavailable.
var fallbackRates = map[string]float64{
	"USD": 145.0,
	"EUR": 158.0,
	"GBP": 185.0,
}

// RatesService converts course prices to the provider's settlement currency.
// Convert never errors: cache hit, then live lookup, then fallback rate.
type RatesService struct {
	source   rates.Source
	cache    cache.Cache
	cacheTTL time.Duration
}

func NewRatesService(source rates.Source, c cache.Cache, cacheTTL time.Duration) *RatesService {
	return &RatesService{source: source, cache: c, cacheTTL: cacheTTL}
}

// Convert returns amountCents of fromCurrency in settlement-currency cents,
// rounded to the nearest cent.
func (s *RatesService) Convert(ctx context.Context, amountCents int64, fromCurrency string) int64 {
	if fromCurrency == domain.SettlementCurrency || amountCents == 0 {
		return amountCents
	}
	rate := s.rate(ctx, fromCurrency)
	return int64(math.Round(float64(amountCents) * rate))
}

func (s *RatesService) rate(ctx context.Context, from string) float64 {
	key := fmt.Sprintf("rate:%s:%s", from, domain.SettlementCurrency)
	if v, ok := s.cache.Get(ctx, key); ok {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r > 0 {
			return r
		}
	}
	r, err := s.source.Rate(ctx, from, domain.SettlementCurrency)
	if err == nil && r > 0 {
		s.cache.Set(ctx, key, strconv.FormatFloat(r, 'f', -1, 64), s.cacheTTL)
		return r
	}
	fb, ok := fallbackRates[from]
	if !ok {
		fb = 1.0
	}
	metrics.RateLookupFallbackTotal.Inc()
	log.Printf("[RATES] live lookup failed for %s/%s, using fallback %.2f: %v",
		from, domain.SettlementCurrency, fb, err)
	return fb
}
