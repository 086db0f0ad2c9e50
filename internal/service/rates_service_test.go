package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"somahub/pkg/cache"

	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	rate  float64
	err   error
	calls int
}

func (f *fakeSource) Rate(_ context.Context, _, _ string) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.rate, nil
}

func TestConvertSettlementCurrencyIsIdentity(t *testing.T) {
	src := &fakeSource{rate: 999}
	svc := NewRatesService(src, cache.NewMemory(), time.Hour)

	got := svc.Convert(context.Background(), 12345, "KES")

	assert.Equal(t, int64(12345), got)
	assert.Zero(t, src.calls, "no lookup for the settlement currency")
}

func TestConvertUsesLiveRateAndCachesIt(t *testing.T) {
	src := &fakeSource{rate: 129.1575}
	svc := NewRatesService(src, cache.NewMemory(), time.Hour)

	got := svc.Convert(context.Background(), 999, "USD")
	assert.Equal(t, int64(129028), got) // 999 * 129.1575 rounded

	_ = svc.Convert(context.Background(), 999, "USD")
	assert.Equal(t, 1, src.calls, "second conversion served from cache")
}

func TestConvertPrefersCachedRate(t *testing.T) {
	src := &fakeSource{rate: 999}
	c := cache.NewMemory()
	c.Set(context.Background(), "rate:USD:KES", "150", time.Hour)
	svc := NewRatesService(src, c, time.Hour)

	got := svc.Convert(context.Background(), 100, "USD")

	assert.Equal(t, int64(15000), got)
	assert.Zero(t, src.calls)
}

func TestConvertFallsBackWhenLookupFails(t *testing.T) {
	src := &fakeSource{err: errors.New("rate api down")}
	svc := NewRatesService(src, cache.NewMemory(), time.Hour)

	got := svc.Convert(context.Background(), 100, "USD")

	assert.Equal(t, int64(14500), got) // hard-coded USD fallback, never an error
}

func TestConvertZeroAmount(t *testing.T) {
	src := &fakeSource{err: errors.New("down")}
	svc := NewRatesService(src, cache.NewMemory(), time.Hour)

	assert.Zero(t, svc.Convert(context.Background(), 0, "USD"))
}
