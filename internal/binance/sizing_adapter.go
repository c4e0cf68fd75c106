package binance

import (
	"context"
	"fmt"
)

// SizingAdapter satisfies sizing.EquitySource and sizing.PriceSource by
// reading account equity and mark price straight off FuturesClient,
// avoiding a second account/price cache alongside ExchangeClient.
type SizingAdapter struct {
	client FuturesClient
}

// NewSizingAdapter wraps a FuturesClient for the position sizer.
func NewSizingAdapter(client FuturesClient) *SizingAdapter {
	return &SizingAdapter{client: client}
}

// AccountEquity implements sizing.EquitySource using the futures
// account's available balance.
func (a *SizingAdapter) AccountEquity(ctx context.Context) (float64, error) {
	info, err := a.client.GetFuturesAccountInfo()
	if err != nil {
		return 0, fmt.Errorf("binance: account equity: %w", err)
	}
	return info.AvailableBalance, nil
}

// LastPrice implements sizing.PriceSource using the symbol's mark price.
func (a *SizingAdapter) LastPrice(symbol string) (float64, bool) {
	mark, err := a.client.GetMarkPrice(symbol)
	if err != nil || mark == nil {
		return 0, false
	}
	return mark.MarkPrice, true
}
