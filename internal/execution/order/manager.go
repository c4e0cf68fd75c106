// Package order owns locally generated order IDs and the authoritative
// mapping from exchange order/fill updates back to managed orders.
package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/exchange"
	"strategybot/internal/model"
	"strategybot/internal/orders"
)

var (
	ErrOrderNotFound = errors.New("order not found")
)

// LinkIDGenerator produces the exchange-facing clientOrderId, separate
// from the order manager's own internal map key. Satisfied by
// *orders.ClientOrderIdGenerator, which structures the id as
// MODE-DDMMM-SEQUENCE-TYPE (e.g. "SWI-15JAN-00001-E") using a
// Redis-backed daily sequence when available, falling back to a random
// suffix otherwise.
type LinkIDGenerator interface {
	Generate(ctx context.Context, mode orders.TradingMode, orderType orders.OrderType) (fullID string, baseID string, err error)
}

func linkIDOrderType(flags model.OrderFlags) orders.OrderType {
	switch {
	case flags.IsStopLoss:
		return orders.OrderTypeSL
	case flags.IsTakeProfit, flags.IsExit:
		return orders.OrderTypeTP1
	default:
		return orders.OrderTypeEntry
	}
}

// Repository persists orders and fills. Implemented by internal/persistence.
type Repository interface {
	SaveOrder(ctx context.Context, order model.ManagedOrder) error
	SaveFill(ctx context.Context, fill model.Fill) error
}

// Manager owns the id -> ManagedOrder map and the exchangeOrderId -> id
// index, and translates exchange status strings into the local enum.
type Manager struct {
	mu             sync.RWMutex
	orders         map[string]*model.ManagedOrder
	exchangeIndex  map[string]string              // exchangeOrderId -> id
	appliedExecIDs map[string]map[string]struct{} // local order id -> seen fill.ExecID

	client exchange.Client
	repo   Repository
	bus    *events.Bus
	log    zerolog.Logger

	linkGen LinkIDGenerator
	mode    orders.TradingMode
}

// New constructs an order Manager. repo may be nil (no-op persistence).
func New(client exchange.Client, repo Repository, bus *events.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		orders:         make(map[string]*model.ManagedOrder),
		exchangeIndex:  make(map[string]string),
		appliedExecIDs: make(map[string]map[string]struct{}),
		client:         client,
		repo:           repo,
		bus:            bus,
		log:            log.With().Str("component", "order_manager").Logger(),
		mode:           orders.ModeSwing,
	}
}

// SetLinkIDGenerator attaches a structured clientOrderId generator
// (typically backed by Redis for cross-restart uniqueness). Optional:
// without one, every order's OrderLinkID falls back to a random uuid.
func (m *Manager) SetLinkIDGenerator(gen LinkIDGenerator, mode orders.TradingMode) {
	m.linkGen = gen
	m.mode = mode
}

// PlaceMarket places a market order, optionally with stop-loss/take-
// profit submitted atomically with the entry so exit brackets never
// race the fill.
func (m *Manager) PlaceMarket(ctx context.Context, req exchange.OrderRequest, flags model.OrderFlags, tradeID string) (*model.ManagedOrder, error) {
	return m.place(ctx, req, flags, tradeID, m.client.PlaceMarketOrder)
}

// PlaceLimit places a limit order with the same bracket semantics as PlaceMarket.
func (m *Manager) PlaceLimit(ctx context.Context, req exchange.OrderRequest, flags model.OrderFlags, tradeID string) (*model.ManagedOrder, error) {
	return m.place(ctx, req, flags, tradeID, m.client.PlaceLimitOrder)
}

type placeFunc func(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderAck, error)

func (m *Manager) place(ctx context.Context, req exchange.OrderRequest, flags model.OrderFlags, tradeID string, place placeFunc) (*model.ManagedOrder, error) {
	id := uuid.NewString()
	if req.OrderLinkID == "" {
		req.OrderLinkID = id
		if m.linkGen != nil {
			if fullID, _, err := m.linkGen.Generate(ctx, m.mode, linkIDOrderType(flags)); err == nil {
				req.OrderLinkID = fullID
			} else {
				m.log.Warn().Err(err).Msg("client order id generation failed, falling back to uuid")
			}
		}
	}

	orderType := model.OrderTypeMarket
	if req.Price != nil {
		orderType = model.OrderTypeLimit
	}

	order := &model.ManagedOrder{
		ID:         id,
		Symbol:     req.Symbol,
		Side:       req.Side,
		OrderType:  orderType,
		Price:      req.Price,
		Size:       req.Size,
		Status:     model.OrderPending,
		Flags:      flags,
		TradeID:    tradeID,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	ack, err := place(ctx, req)
	if err != nil {
		order.Status = model.OrderRejected
		m.store(order)
		m.persist(ctx, *order)
		m.bus.Publish(events.Event{Type: events.EventOrderRejected, Data: map[string]interface{}{"order": *order, "error": err.Error()}})
		return order, fmt.Errorf("order: place %s %s: %w", req.Symbol, req.Side, err)
	}

	order.ExchangeOrderID = ack.ExchangeOrderID
	order.Status = mapExchangeStatus(ack.Status)

	m.store(order)
	m.mu.Lock()
	m.exchangeIndex[ack.ExchangeOrderID] = id
	m.mu.Unlock()

	m.persist(ctx, *order)
	m.bus.Publish(events.Event{Type: events.EventOrderPlaced, Data: map[string]interface{}{"order": *order}})
	return order, nil
}

// Cancel cancels a single managed order by local id.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.RLock()
	order, exists := m.orders[id]
	m.mu.RUnlock()
	if !exists {
		return ErrOrderNotFound
	}

	if err := m.client.CancelOrder(ctx, order.Symbol, order.ID); err != nil {
		return fmt.Errorf("order: cancel %s: %w", id, err)
	}

	m.mu.Lock()
	order.Status = model.OrderCancelled
	order.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.persist(ctx, *order)
	m.bus.Publish(events.Event{Type: events.EventOrderCancelled, Data: map[string]interface{}{"order": *order}})
	return nil
}

// CancelAll cancels every open order for a symbol.
func (m *Manager) CancelAll(ctx context.Context, symbol string) error {
	if err := m.client.CancelAllOrders(ctx, symbol); err != nil {
		return fmt.Errorf("order: cancel all %s: %w", symbol, err)
	}

	m.mu.Lock()
	var cancelled []model.ManagedOrder
	for _, order := range m.orders {
		if order.Symbol != symbol {
			continue
		}
		switch order.Status {
		case model.OrderOpen, model.OrderPartiallyFilled, model.OrderPending:
			order.Status = model.OrderCancelled
			order.UpdatedAt = time.Now()
			cancelled = append(cancelled, *order)
		}
	}
	m.mu.Unlock()

	for _, order := range cancelled {
		m.persist(ctx, order)
		m.bus.Publish(events.Event{Type: events.EventOrderCancelled, Data: map[string]interface{}{"order": order}})
	}
	return nil
}

// ApplyFill records a fill against the order it belongs to. An order is
// considered FILLED once cumulative executed size reaches FillTolerance
// of the ordered size.
//
// Replaying the same execution frame must not double-count or regress
// status, so this is idempotent two ways: a fill whose ExecID was
// already applied to this order is a no-op, and when the caller
// supplies CumulativeSize (the exchange's own running total, as
// order.ParseExecution does from cumQty) that value is taken as the
// new FilledSize directly rather than added to it, so a replayed or
// out-of-order frame can never push FilledSize past what the exchange
// actually reports. Callers with no cumulative figure (e.g. a manual
// correction) fall back to summing Size as a delta.
func (m *Manager) ApplyFill(ctx context.Context, exchangeOrderID string, fill model.Fill) error {
	m.mu.Lock()
	id, ok := m.exchangeIndex[exchangeOrderID]
	if !ok {
		m.mu.Unlock()
		return ErrOrderNotFound
	}
	order := m.orders[id]
	fill.OrderID = order.ID

	if fill.ExecID != "" {
		seen := m.appliedExecIDs[order.ID]
		if seen == nil {
			seen = make(map[string]struct{})
			m.appliedExecIDs[order.ID] = seen
		}
		if _, dup := seen[fill.ExecID]; dup {
			m.mu.Unlock()
			return nil
		}
		seen[fill.ExecID] = struct{}{}
	}

	var delta float64
	if fill.CumulativeSize > 0 {
		if fill.CumulativeSize <= order.FilledSize {
			m.mu.Unlock()
			return nil
		}
		delta = fill.CumulativeSize - order.FilledSize
	} else {
		delta = fill.Size
	}

	avgPrice := fill.Price
	if order.AvgFillPrice != nil && order.FilledSize > 0 {
		avgPrice = (*order.AvgFillPrice*order.FilledSize + fill.Price*delta) / (order.FilledSize + delta)
	}
	order.FilledSize += delta
	order.AvgFillPrice = &avgPrice
	order.UpdatedAt = time.Now()

	wasFilled := order.Status == model.OrderFilled
	if order.FilledSize >= order.Size*model.FillTolerance {
		order.Status = model.OrderFilled
	} else if order.FilledSize > 0 {
		order.Status = model.OrderPartiallyFilled
	}
	snapshot := *order
	nowFilled := order.Status == model.OrderFilled && !wasFilled
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	if err := m.saveFill(ctx, fill); err != nil {
		m.log.Error().Err(err).Str("order_id", snapshot.ID).Msg("failed to persist fill")
	}

	if nowFilled {
		m.bus.Publish(events.Event{Type: events.EventOrderFilled, Data: map[string]interface{}{"order": snapshot}})
	} else {
		m.bus.Publish(events.Event{Type: events.EventOrderPartiallyFilled, Data: map[string]interface{}{"order": snapshot, "fill": fill}})
	}
	return nil
}

// Get returns a copy of a managed order by local id.
func (m *Manager) Get(id string) (model.ManagedOrder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return model.ManagedOrder{}, false
	}
	return *order, true
}

func (m *Manager) store(order *model.ManagedOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
}

func (m *Manager) persist(ctx context.Context, order model.ManagedOrder) {
	if m.repo == nil {
		return
	}
	if err := m.repo.SaveOrder(ctx, order); err != nil {
		m.log.Error().Err(err).Str("order_id", order.ID).Msg("failed to persist order")
	}
}

func (m *Manager) saveFill(ctx context.Context, fill model.Fill) error {
	if m.repo == nil {
		return nil
	}
	return m.repo.SaveFill(ctx, fill)
}

// ParseExecution converts one raw TopicExecution frame (a TRADE-type
// order update) into the exchange order id it belongs to and the Fill
// to apply against it. Numeric fields arrive as either a json.Number,
// float64 or int64 depending on how the adapter built the frame.
//
// CumulativeSize is read from the exchange's own cumQty field rather
// than derived by summing lastFilledQty deltas locally: cumQty is the
// exchange's running total, so ApplyFill can set FilledSize from it
// directly instead of accumulating floating-point deltas across
// possibly-replayed frames.
func ParseExecution(raw map[string]interface{}) (exchangeOrderID string, fill model.Fill, ok bool) {
	id := parseOrderID(raw["orderId"])
	if id == "" {
		return "", model.Fill{}, false
	}

	qty := parseNumber(raw["lastFilledQty"])
	if qty <= 0 {
		return "", model.Fill{}, false
	}

	fill = model.Fill{
		Price:          parseNumber(raw["lastFilledPrice"]),
		Size:           qty,
		CumulativeSize: parseNumber(raw["cumQty"]),
		FilledAt:       time.Now(),
	}
	if cid, ok := raw["clientOrderId"].(string); ok {
		fill.ExecID = cid
	}
	return id, fill, true
}

func parseOrderID(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatInt(int64(val), 10)
	default:
		return ""
	}
}

func parseNumber(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	case float64:
		return val
	case int64:
		return float64(val)
	default:
		return 0
	}
}

// mapExchangeStatus maps an exchange's raw order status string to the
// local enum.
func mapExchangeStatus(status string) model.OrderStatus {
	switch status {
	case "New":
		return model.OrderOpen
	case "PartiallyFilled":
		return model.OrderPartiallyFilled
	case "Filled":
		return model.OrderFilled
	case "Cancelled", "Canceled":
		return model.OrderCancelled
	case "Rejected":
		return model.OrderRejected
	default:
		return model.OrderPending
	}
}
