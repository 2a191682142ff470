package lob

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = 2
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return "UNKNOWN"
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseSide converts the wire representation ("BUY"/"SELL") into a Side.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	}
	return 0, ErrInvalidSide
}

// Order represents a resting order in the book. Size is the remaining
// quantity and is the only field mutated after creation.
type Order struct {
	ID        uint64          `json:"id"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`      // Remaining size
	Timestamp int64           `json:"timestamp"` // Unix nano, arrival time

	// Intrusive linked list pointers (ignored by JSON)
	next *Order
	prev *Order
}

// Trade is an immutable record of one match event. Price is always the
// maker's quoted price; the taker receives any price improvement.
type Trade struct {
	ID           uint64          `json:"id"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	MakerOrderID uint64          `json:"maker_order_id"`
	TakerOrderID uint64          `json:"taker_order_id"`
	CreatedAt    time.Time       `json:"created_at"`
}

type LogType string

const (
	LogTypeOpen   LogType = "open"
	LogTypeMatch  LogType = "match"
	LogTypeCancel LogType = "cancel"
	LogTypeAmend  LogType = "amend"
)

// BookLog represents an event in the order book.
// SequenceID is a gapless increasing ID for every event, used for ordering,
// deduplication, and rebuild synchronization in downstream systems.
// For Match events, Side is the taker's side and MakerOrderID identifies the
// resting order that was hit.
type BookLog struct {
	SequenceID   uint64          `json:"seq_id"`
	TradeID      uint64          `json:"trade_id,omitempty"` // Sequential trade ID, only set for Match events
	Type         LogType         `json:"type"`
	Side         Side            `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	OldPrice     decimal.Decimal `json:"old_price,omitempty"` // Only set for Amend events
	OldSize      decimal.Decimal `json:"old_size,omitempty"`  // Only set for Amend events
	OrderID      uint64          `json:"order_id"`
	MakerOrderID uint64          `json:"maker_order_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

var bookLogPool = sync.Pool{
	New: func() interface{} {
		return new(BookLog)
	},
}

func acquireBookLog() *BookLog {
	return bookLogPool.Get().(*BookLog)
}

func releaseBookLog(log *BookLog) {
	// Reset structure to zero values.
	// For decimal.Decimal, the zero value represents 0, which is valid.
	*log = BookLog{}
	bookLogPool.Put(log)
}

// DepthItem is one aggregated price level: the sum of all resting sizes at
// that price, not the order count.
type DepthItem struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Depth is a point-in-time view of the aggregated book, best price first on
// both sides.
type Depth struct {
	UpdateID uint64      `json:"update_id"`
	Bids     []DepthItem `json:"bids"`
	Asks     []DepthItem `json:"asks"`
}

// BookStats contains statistics about the order book queues.
type BookStats struct {
	AskDepthCount int64
	AskOrderCount int64
	BidDepthCount int64
	BidOrderCount int64
}

// DepthChange represents a change in the order book depth.
type DepthChange struct {
	Side     Side
	Price    decimal.Decimal
	SizeDiff decimal.Decimal
}
