package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"strategybot/internal/exchange"
	"strategybot/internal/model"
)

// KlineStreamAdapter adapts Binance's futures kline websocket stream,
// bookkept by a KlineSubscriptionManager, into exchange.KlineStream.
type KlineStreamAdapter struct {
	subs  *KlineSubscriptionManager
	wsURL string

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  int64
	running bool

	events chan exchange.KlineEvent
}

// NewKlineStreamAdapter constructs an adapter dialing the futures
// raw-stream /ws endpoint (mainnet or testnet).
func NewKlineStreamAdapter(testnet bool) *KlineStreamAdapter {
	wsURL := "wss://fstream.binance.com/ws"
	if testnet {
		wsURL = "wss://stream.binancefuture.com/ws"
	}
	a := &KlineStreamAdapter{
		subs:   NewKlineSubscriptionManager(),
		wsURL:  wsURL,
		events: make(chan exchange.KlineEvent, 256),
	}
	a.subs.SetSubscriber(a)
	return a
}

var _ exchange.KlineStream = (*KlineStreamAdapter)(nil)
var _ KlineSubscriber = (*KlineStreamAdapter)(nil)

// Connect dials the stream endpoint, starts the read loop, and replays
// any symbol/timeframe subscriptions already bookkept from before a
// reconnect.
func (a *KlineStreamAdapter) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.wsURL, nil)
	if err != nil {
		return fmt.Errorf("binance: kline stream dial: %w", err)
	}

	a.mu.Lock()
	a.conn = conn
	a.running = true
	a.mu.Unlock()

	go a.readLoop(conn)

	for _, symbol := range a.subs.GetSubscribedSymbols() {
		for _, tf := range a.subs.GetSymbolTimeframes(symbol) {
			if err := a.SubscribeKline(symbol, string(tf)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Subscribe registers symbol/timeframe with the subscription manager,
// which in turn invokes SubscribeKline below to send the wire frame.
func (a *KlineStreamAdapter) Subscribe(symbol, timeframe string) error {
	interval, err := timeframeToInterval(timeframe)
	if err != nil {
		return err
	}
	return a.subs.SubscribeTimeframe(symbol, KlineTimeframe(interval))
}

// Unsubscribe is Subscribe's inverse.
func (a *KlineStreamAdapter) Unsubscribe(symbol, timeframe string) error {
	interval, err := timeframeToInterval(timeframe)
	if err != nil {
		return err
	}
	return a.subs.UnsubscribeTimeframe(symbol, KlineTimeframe(interval))
}

// SubscribeKline implements KlineSubscriber: sends the raw wire-format
// SUBSCRIBE frame for symbol@kline_interval.
func (a *KlineStreamAdapter) SubscribeKline(symbol, interval string) error {
	return a.sendSubscription("SUBSCRIBE", symbol, interval)
}

// UnsubscribeKline implements KlineSubscriber.
func (a *KlineStreamAdapter) UnsubscribeKline(symbol, interval string) error {
	return a.sendSubscription("UNSUBSCRIBE", symbol, interval)
}

func (a *KlineStreamAdapter) sendSubscription(method, symbol, interval string) error {
	a.mu.Lock()
	conn := a.conn
	a.nextID++
	id := a.nextID
	a.mu.Unlock()

	if conn == nil {
		// Not yet connected: Connect() replays the subscription manager's
		// bookkept state once the socket is up.
		return nil
	}

	stream := strings.ToLower(symbol) + "@kline_" + interval
	return conn.WriteJSON(map[string]interface{}{
		"method": method,
		"params": []string{stream},
		"id":     id,
	})
}

// Events returns the channel fed by parsed kline frames.
func (a *KlineStreamAdapter) Events() <-chan exchange.KlineEvent {
	return a.events
}

// Close tears down the websocket connection.
func (a *KlineStreamAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

func (a *KlineStreamAdapter) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		a.handleMessage(message)
	}
}

type klineWireEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		IsClosed  bool   `json:"x"`
	} `json:"k"`
}

func (a *KlineStreamAdapter) handleMessage(message []byte) {
	var wire klineWireEvent
	if err := json.Unmarshal(message, &wire); err != nil || wire.EventType != "kline" {
		return
	}

	open, _ := strconv.ParseFloat(wire.Kline.Open, 64)
	high, _ := strconv.ParseFloat(wire.Kline.High, 64)
	low, _ := strconv.ParseFloat(wire.Kline.Low, 64)
	closePrice, _ := strconv.ParseFloat(wire.Kline.Close, 64)
	volume, _ := strconv.ParseFloat(wire.Kline.Volume, 64)

	timeframe := intervalToTimeframe(wire.Kline.Interval)

	candle := model.Candle{
		Symbol:    wire.Symbol,
		Timeframe: timeframe,
		OpenTime:  wire.Kline.OpenTime,
		CloseTime: wire.Kline.CloseTime,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}

	select {
	case a.events <- exchange.KlineEvent{
		Symbol:    wire.Symbol,
		Timeframe: timeframe,
		Candle:    candle,
		Closed:    wire.Kline.IsClosed,
	}:
	default:
	}
}
