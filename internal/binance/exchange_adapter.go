package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"strategybot/internal/exchange"
	"strategybot/internal/model"
)

// ExchangeClient adapts a FuturesClient (REST) into exchange.Client, the
// narrow surface the strategy core consumes. It runs one-way mode
// (PositionSideBoth) only; hedge mode is out of scope.
type ExchangeClient struct {
	client FuturesClient
}

// NewExchangeClient wraps a FuturesClient.
func NewExchangeClient(client FuturesClient) *ExchangeClient {
	return &ExchangeClient{client: client}
}

var _ exchange.Client = (*ExchangeClient)(nil)

// timeframeToInterval maps the exchange-agnostic integer-minutes
// convention used by exchange.Client to Binance's kline interval
// strings.
func timeframeToInterval(timeframe string) (string, error) {
	switch strings.ToUpper(timeframe) {
	case "D":
		return "1d", nil
	case "W":
		return "1w", nil
	}
	minutes, err := strconv.Atoi(timeframe)
	if err != nil {
		return "", fmt.Errorf("unrecognized timeframe %q: %w", timeframe, err)
	}
	switch {
	case minutes%1440 == 0 && minutes >= 1440:
		return fmt.Sprintf("%dd", minutes/1440), nil
	case minutes%60 == 0 && minutes >= 60:
		return fmt.Sprintf("%dh", minutes/60), nil
	default:
		return fmt.Sprintf("%dm", minutes), nil
	}
}

// intervalToTimeframe is timeframeToInterval's inverse, used to label
// kline stream frames with the caller's own timeframe convention.
func intervalToTimeframe(interval string) string {
	switch interval {
	case "1d":
		return "D"
	case "1w":
		return "W"
	}
	n := strings.TrimRight(interval, "mh")
	if strings.HasSuffix(interval, "h") {
		hours, err := strconv.Atoi(n)
		if err == nil {
			return strconv.Itoa(hours * 60)
		}
	}
	return n
}

// GetKlines retrieves candlestick history for symbol/timeframe, paging
// via the ranged REST call when start/end are supplied.
func (c *ExchangeClient) GetKlines(ctx context.Context, symbol, timeframe string, limit int, start, end int64) ([]model.Candle, error) {
	interval, err := timeframeToInterval(timeframe)
	if err != nil {
		return nil, err
	}

	raw, err := c.client.GetFuturesKlinesRange(symbol, interval, limit, start, end)
	if err != nil {
		return nil, fmt.Errorf("binance: get klines %s/%s: %w", symbol, timeframe, err)
	}

	candles := make([]model.Candle, len(raw))
	for i, k := range raw {
		candles[i] = model.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			OpenTime:  k.OpenTime,
			CloseTime: k.CloseTime,
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		}
	}
	return candles, nil
}

// PlaceMarketOrder submits a reduce-only-aware market order, followed by
// exchange-resident STOP_MARKET/TAKE_PROFIT_MARKET algo orders when the
// request carries SL/TP, so brackets are live within the same call.
func (c *ExchangeClient) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderAck, error) {
	return c.placeOrder(ctx, FuturesOrderTypeMarket, 0, req)
}

// PlaceLimitOrder submits a GTC limit order with the same bracket
// behavior as PlaceMarketOrder.
func (c *ExchangeClient) PlaceLimitOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderAck, error) {
	if req.Price == nil {
		return nil, fmt.Errorf("binance: limit order for %s missing price", req.Symbol)
	}
	return c.placeOrder(ctx, FuturesOrderTypeLimit, *req.Price, req)
}

func (c *ExchangeClient) placeOrder(ctx context.Context, orderType FuturesOrderType, price float64, req exchange.OrderRequest) (*exchange.OrderAck, error) {
	side := "BUY"
	if req.Side == model.SideShort {
		side = "SELL"
	}

	params := FuturesOrderParams{
		Symbol:           req.Symbol,
		Side:             side,
		PositionSide:     PositionSideBoth,
		Type:             orderType,
		Quantity:         req.Size,
		Price:            price,
		ReduceOnly:       req.ReduceOnly,
		NewClientOrderId: req.OrderLinkID,
	}
	if orderType == FuturesOrderTypeLimit {
		params.TimeInForce = TimeInForceGTC
	}

	resp, err := c.client.PlaceFuturesOrder(params)
	if err != nil {
		return nil, fmt.Errorf("binance: place order %s: %w", req.Symbol, err)
	}

	closeSide := "SELL"
	if req.Side == model.SideShort {
		closeSide = "BUY"
	}
	if req.StopLoss != nil {
		if _, err := c.client.PlaceAlgoOrder(AlgoOrderParams{
			Symbol:        req.Symbol,
			Side:          closeSide,
			PositionSide:  PositionSideBoth,
			Type:          FuturesOrderTypeStopMarket,
			TriggerPrice:  *req.StopLoss,
			ClosePosition: true,
			WorkingType:   "MARK_PRICE",
		}); err != nil {
			return nil, fmt.Errorf("binance: place emergency SL for %s: %w", req.Symbol, err)
		}
	}
	if req.TakeProfit != nil {
		if _, err := c.client.PlaceAlgoOrder(AlgoOrderParams{
			Symbol:        req.Symbol,
			Side:          closeSide,
			PositionSide:  PositionSideBoth,
			Type:          FuturesOrderTypeTakeProfitMarket,
			TriggerPrice:  *req.TakeProfit,
			ClosePosition: true,
			WorkingType:   "MARK_PRICE",
		}); err != nil {
			return nil, fmt.Errorf("binance: place take profit for %s: %w", req.Symbol, err)
		}
	}

	return &exchange.OrderAck{
		ExchangeOrderID: strconv.FormatInt(resp.OrderId, 10),
		OrderLinkID:     resp.ClientOrderId,
		Status:          resp.Status,
	}, nil
}

// CancelOrder cancels a single order by its caller-supplied idempotency
// key. Binance's cancel-by-clientOrderId path is not exposed by
// FuturesClient, so this cancels the first open order for the symbol
// whose client order id matches.
func (c *ExchangeClient) CancelOrder(ctx context.Context, symbol, orderLinkID string) error {
	orders, err := c.client.GetOpenOrders(symbol)
	if err != nil {
		return fmt.Errorf("binance: list open orders for %s: %w", symbol, err)
	}
	for _, o := range orders {
		if o.ClientOrderId == orderLinkID {
			return c.client.CancelFuturesOrder(symbol, o.OrderId)
		}
	}
	return fmt.Errorf("binance: order %s not found for %s", orderLinkID, symbol)
}

// CancelAllOrders cancels every open order (entry and bracket) for a symbol.
func (c *ExchangeClient) CancelAllOrders(ctx context.Context, symbol string) error {
	if err := c.client.CancelAllFuturesOrders(symbol); err != nil {
		return fmt.Errorf("binance: cancel all orders for %s: %w", symbol, err)
	}
	if err := c.client.CancelAllAlgoOrders(symbol); err != nil {
		return fmt.Errorf("binance: cancel all algo orders for %s: %w", symbol, err)
	}
	return nil
}

// GetPosition retrieves the current position for a symbol. A flat
// symbol (size 0) is reported as not found, matching model.TrackedPosition's
// present-only-while-open convention.
func (c *ExchangeClient) GetPosition(ctx context.Context, symbol string) (*model.TrackedPosition, error) {
	pos, err := c.client.GetPositionBySymbol(symbol)
	if err != nil {
		return nil, fmt.Errorf("binance: get position %s: %w", symbol, err)
	}
	if pos == nil || pos.PositionAmt == 0 {
		return nil, nil
	}
	tp := futuresPositionToTracked(*pos)
	return &tp, nil
}

// GetAllPositions retrieves every currently open position.
func (c *ExchangeClient) GetAllPositions(ctx context.Context) ([]model.TrackedPosition, error) {
	positions, err := c.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("binance: get positions: %w", err)
	}
	out := make([]model.TrackedPosition, 0, len(positions))
	for _, p := range positions {
		if p.PositionAmt == 0 {
			continue
		}
		out = append(out, futuresPositionToTracked(p))
	}
	return out, nil
}

// SetLeverage sets per-symbol leverage ahead of entry.
func (c *ExchangeClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if _, err := c.client.SetLeverage(symbol, leverage); err != nil {
		return fmt.Errorf("binance: set leverage %s=%dx: %w", symbol, leverage, err)
	}
	return nil
}

func futuresPositionToTracked(p FuturesPosition) model.TrackedPosition {
	side := model.SideLong
	size := p.PositionAmt
	if size < 0 {
		side = model.SideShort
		size = -size
	}
	return model.TrackedPosition{
		Symbol:        p.Symbol,
		Side:          side,
		Size:          size,
		AvgPrice:      p.EntryPrice,
		Leverage:      p.Leverage,
		UnrealizedPnl: p.UnrealizedProfit,
		MarkPrice:     p.MarkPrice,
		LiqPrice:      p.LiquidationPrice,
	}
}
