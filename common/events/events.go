// Package events defines the event envelope and typed payloads that ride on
// the messaging substrate (spec.md §3, §6). Field names are PascalCase on
// the wire; Go identifiers stay idiomatic via json tags.
package events

import "time"

// Routing keys named in spec.md §4.2.
const (
	RoutingOrderPlaced               = "order.placed"
	RoutingStockReservationRequested = "stock.reservation.requested"
	RoutingStockReserved             = "stock.reserved"
	RoutingStockReservationFailed    = "stock.reservation_failed"
	RoutingOrderConfirmed            = "order.confirmed"
	RoutingOrderCancelled            = "order.cancelled"
)

// EventBase is embedded by every typed event.
type EventBase struct {
	EventID       string    `json:"EventId"`
	Timestamp     time.Time `json:"Timestamp"`
	CorrelationID string    `json:"CorrelationId,omitempty"`
}

// OrderLineItem is the shared line-item payload shape.
type OrderLineItem struct {
	ProductID string  `json:"ProductId"`
	Quantity  int     `json:"Quantity"`
	UnitPrice float64 `json:"UnitPrice"`
}

// FailedLineItem describes a line item that could not be reserved.
type FailedLineItem struct {
	ProductID string `json:"ProductId"`
	Requested int    `json:"Requested"`
	Available int    `json:"Available"`
	Reason    string `json:"Reason"`
}

// OrderPlacedEvent starts a saga (routing key RoutingOrderPlaced).
type OrderPlacedEvent struct {
	EventBase
	OrderID       string          `json:"OrderId"`
	UserID        string          `json:"UserId"`
	OrderNumber   string          `json:"OrderNumber"`
	CustomerName  string          `json:"CustomerName"`
	CustomerEmail string          `json:"CustomerEmail"`
	PhoneNumber   string          `json:"PhoneNumber"`
	TotalAmount   float64         `json:"TotalAmount"`
	Items         []OrderLineItem `json:"Items"`
}

// StockReservationRequestedEvent asks the Product service to reserve stock
// (routing key RoutingStockReservationRequested).
type StockReservationRequestedEvent struct {
	EventBase
	OrderID string          `json:"OrderId"`
	UserID  string          `json:"UserId"`
	Items   []OrderLineItem `json:"Items"`
}

// StockReservedCompletedEvent reports a successful reservation (routing key
// RoutingStockReserved).
type StockReservedCompletedEvent struct {
	EventBase
	OrderID string          `json:"OrderId"`
	UserID  string          `json:"UserId"`
	Items   []OrderLineItem `json:"Items"`
}

// StockReservationFailedEvent reports a failed reservation (routing key
// RoutingStockReservationFailed).
type StockReservationFailedEvent struct {
	EventBase
	OrderID     string           `json:"OrderId"`
	UserID      string           `json:"UserId"`
	Reason      string           `json:"Reason"`
	FailedItems []FailedLineItem `json:"FailedItems"`
}

// OrderConfirmedEvent is the saga's successful terminal event (routing key
// RoutingOrderConfirmed).
type OrderConfirmedEvent struct {
	EventBase
	OrderID       string          `json:"OrderId"`
	UserID        string          `json:"UserId"`
	OrderNumber   string          `json:"OrderNumber"`
	CustomerName  string          `json:"CustomerName"`
	CustomerEmail string          `json:"CustomerEmail"`
	PhoneNumber   string          `json:"PhoneNumber"`
	TotalAmount   float64         `json:"TotalAmount"`
	Items         []OrderLineItem `json:"Items"`
}

// OrderCancelledEvent is the saga's compensating terminal event (routing key
// RoutingOrderCancelled).
type OrderCancelledEvent struct {
	EventBase
	OrderID       string           `json:"OrderId"`
	UserID        string           `json:"UserId"`
	OrderNumber   string           `json:"OrderNumber"`
	CustomerName  string           `json:"CustomerName"`
	CustomerEmail string           `json:"CustomerEmail"`
	PhoneNumber   string           `json:"PhoneNumber"`
	TotalAmount   float64          `json:"TotalAmount"`
	Reason        string           `json:"Reason"`
	Items         []FailedLineItem `json:"Items"`
}
