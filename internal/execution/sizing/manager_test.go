package sizing

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"strategybot/internal/model"
)

type fakeEquity struct {
	balance float64
	err     error
}

func (f fakeEquity) AccountEquity(ctx context.Context) (float64, error) {
	return f.balance, f.err
}

type fakePrices struct {
	prices map[string]float64
}

func (f fakePrices) LastPrice(symbol string) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}

func TestSizeLongRisksConfiguredPercentOfEquity(t *testing.T) {
	equity := fakeEquity{balance: 10000}
	prices := fakePrices{prices: map[string]float64{"BTCUSDT": 100000}}
	m := New(equity, prices, Config{EmergencySLPercent: 4}, zerolog.Nop())

	size, err := m.Size(context.Background(), "BTCUSDT", model.SideLong, 1, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// riskAmount = 10000 * 1% = 100; stop = 100000*0.96 = 96000; riskPerUnit = 4000
	// size = 100 / 4000 = 0.025
	want := 0.025
	if diff := size - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("size = %v, want %v", size, want)
	}
}

func TestSizeErrorsOnMissingPrice(t *testing.T) {
	equity := fakeEquity{balance: 10000}
	prices := fakePrices{prices: map[string]float64{}}
	m := New(equity, prices, DefaultConfig(), zerolog.Nop())

	if _, err := m.Size(context.Background(), "ETHUSDT", model.SideShort, 1, 5); err == nil {
		t.Fatal("expected error for missing reference price")
	}
}

func TestSizeErrorsOnNonPositiveEquity(t *testing.T) {
	equity := fakeEquity{balance: 0}
	prices := fakePrices{prices: map[string]float64{"BTCUSDT": 100000}}
	m := New(equity, prices, DefaultConfig(), zerolog.Nop())

	if _, err := m.Size(context.Background(), "BTCUSDT", model.SideLong, 1, 5); err == nil {
		t.Fatal("expected error for non-positive equity")
	}
}

func TestSizePropagatesEquitySourceError(t *testing.T) {
	equity := fakeEquity{err: context.DeadlineExceeded}
	prices := fakePrices{prices: map[string]float64{"BTCUSDT": 100000}}
	m := New(equity, prices, DefaultConfig(), zerolog.Nop())

	if _, err := m.Size(context.Background(), "BTCUSDT", model.SideLong, 1, 5); err == nil {
		t.Fatal("expected propagated equity source error")
	}
}
