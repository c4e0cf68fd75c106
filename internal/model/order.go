package model

import "time"

// OrderType distinguishes market vs limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus is the locally-mapped lifecycle status of a managed order.
type OrderStatus string

const (
	OrderPending          OrderStatus = "PENDING"
	OrderOpen             OrderStatus = "OPEN"
	OrderPartiallyFilled  OrderStatus = "PARTIALLY_FILLED"
	OrderFilled           OrderStatus = "FILLED"
	OrderCancelled        OrderStatus = "CANCELLED"
	OrderRejected         OrderStatus = "REJECTED"
)

// OrderFlags records the role an order plays in a position's lifecycle.
type OrderFlags struct {
	ReduceOnly  bool
	IsEntry     bool
	IsExit      bool
	IsStopLoss  bool
	IsTakeProfit bool
}

// ManagedOrder is the order manager's authoritative view of a single
// order, keyed locally by ID and, once acknowledged, by ExchangeOrderID.
type ManagedOrder struct {
	ID              string
	ExchangeOrderID string
	Symbol          string
	Side            Side
	OrderType       OrderType
	Price           *float64
	Size            float64
	FilledSize      float64
	AvgFillPrice    *float64
	Status          OrderStatus
	Flags           OrderFlags
	TradeID         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FillTolerance is the exchange-rounding allowance used to treat an
// order as fully filled once cumulative executed size is within this
// fraction of the ordered size. It is not a correctness knob.
const FillTolerance = 0.999

// Fill records one execution against an order. Size is the quantity
// traded in this specific execution; CumulativeSize, when known, is the
// exchange-reported total executed size for the order so far and is
// authoritative over locally summed deltas.
type Fill struct {
	ExecID         string
	OrderID        string
	Price          float64
	Size           float64
	CumulativeSize float64
	Fee            float64
	FilledAt       time.Time
}
