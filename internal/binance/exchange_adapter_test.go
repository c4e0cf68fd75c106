package binance

import (
	"context"
	"testing"

	"strategybot/internal/exchange"
	"strategybot/internal/model"
)

func TestTimeframeToIntervalMapsCommonConventions(t *testing.T) {
	cases := map[string]string{
		"1": "1m", "5": "5m", "15": "15m", "60": "1h", "240": "4h", "D": "1d", "W": "1w",
	}
	for tf, want := range cases {
		got, err := timeframeToInterval(tf)
		if err != nil {
			t.Fatalf("timeframeToInterval(%q) error: %v", tf, err)
		}
		if got != want {
			t.Errorf("timeframeToInterval(%q) = %q, want %q", tf, got, want)
		}
	}
}

func TestTimeframeToIntervalRejectsGarbage(t *testing.T) {
	if _, err := timeframeToInterval("banana"); err == nil {
		t.Fatal("expected error for unrecognized timeframe")
	}
}

func TestGetKlinesMapsSymbolAndTimeframeOntoEachCandle(t *testing.T) {
	mock := NewFuturesMockClient(10000, nil)
	client := NewExchangeClient(mock)

	candles, err := client.GetKlines(context.Background(), "BTCUSDT", "60", 10, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 10 {
		t.Fatalf("len(candles) = %d, want 10", len(candles))
	}
	for _, c := range candles {
		if c.Symbol != "BTCUSDT" || c.Timeframe != "60" {
			t.Fatalf("candle has wrong symbol/timeframe: %+v", c)
		}
	}
}

// algoSpy wraps FuturesMockClient to count PlaceAlgoOrder calls: the
// mock client accepts but does not track algo orders, so this is the
// only way to observe that the adapter submitted SL/TP brackets.
type algoSpy struct {
	*FuturesMockClient
	algoCalls []AlgoOrderParams
}

func (s *algoSpy) PlaceAlgoOrder(params AlgoOrderParams) (*AlgoOrderResponse, error) {
	s.algoCalls = append(s.algoCalls, params)
	return s.FuturesMockClient.PlaceAlgoOrder(params)
}

func TestPlaceMarketOrderPlacesBracketOrdersWhenRequested(t *testing.T) {
	spy := &algoSpy{FuturesMockClient: NewFuturesMockClient(10000, nil)}
	client := NewExchangeClient(spy)

	sl := 48000.0
	tp := 55000.0
	ack, err := client.PlaceMarketOrder(context.Background(), exchange.OrderRequest{
		Symbol:      "BTCUSDT",
		Side:        model.SideLong,
		Size:        0.1,
		StopLoss:    &sl,
		TakeProfit:  &tp,
		OrderLinkID: "entry-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.ExchangeOrderID == "" {
		t.Fatal("expected non-empty exchange order id")
	}
	if len(spy.algoCalls) != 2 {
		t.Fatalf("len(algoCalls) = %d, want 2 (SL + TP)", len(spy.algoCalls))
	}
	if spy.algoCalls[0].Type != FuturesOrderTypeStopMarket {
		t.Errorf("first algo order type = %v, want STOP_MARKET", spy.algoCalls[0].Type)
	}
	if spy.algoCalls[1].Type != FuturesOrderTypeTakeProfitMarket {
		t.Errorf("second algo order type = %v, want TAKE_PROFIT_MARKET", spy.algoCalls[1].Type)
	}
}

func TestPlaceLimitOrderRequiresPrice(t *testing.T) {
	mock := NewFuturesMockClient(10000, nil)
	client := NewExchangeClient(mock)

	if _, err := client.PlaceLimitOrder(context.Background(), exchange.OrderRequest{Symbol: "BTCUSDT", Side: model.SideLong, Size: 0.1}); err == nil {
		t.Fatal("expected error for missing limit price")
	}
}

func TestGetPositionReturnsNilWhenFlat(t *testing.T) {
	mock := NewFuturesMockClient(10000, nil)
	client := NewExchangeClient(mock)

	pos, err := client.GetPosition(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos != nil {
		t.Fatalf("expected nil position for flat symbol, got %+v", pos)
	}
}

func TestGetPositionAfterEntryReportsSide(t *testing.T) {
	mock := NewFuturesMockClient(10000, nil)
	client := NewExchangeClient(mock)

	if _, err := client.PlaceMarketOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: model.SideShort, Size: 0.2,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos, err := client.GetPosition(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos == nil {
		t.Fatal("expected an open position after entry")
	}
	if pos.Side != model.SideShort {
		t.Errorf("side = %v, want SideShort", pos.Side)
	}
	if pos.Size != 0.2 {
		t.Errorf("size = %v, want 0.2", pos.Size)
	}
}
