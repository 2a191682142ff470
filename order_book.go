package lob

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// CommandType represents the type of command sent to the order book.
type CommandType int

const (
	CmdSubmitOrder CommandType = iota
	CmdCancelOrder
	CmdAmendOrder
	CmdDepth
	CmdQuote
	CmdGetStats
	CmdSnapshot
	CmdTrades
)

type Response struct {
	Error error
	Data  any
}

// Command is the unit of work consumed by the order book loop. A single
// channel keeps mutation deterministic: commands are applied one at a time in
// arrival order.
type Command struct {
	Type    CommandType
	Payload any
	Resp    chan *Response
}

type submitRequest struct {
	side  Side
	price decimal.Decimal
	size  decimal.Decimal
}

type amendRequest struct {
	orderID  uint64
	newPrice decimal.Decimal
	newSize  decimal.Decimal
}

// SubmitResult carries the outcome of a submit call.
type SubmitResult struct {
	OrderID uint64
	Trades  []Trade
}

// AmendResult carries the outcome of an amend call. Trades is non-empty when
// the amended order lost priority and re-matched immediately.
type AmendResult struct {
	Found  bool
	Trades []Trade
}

// Quote is a top-of-book snapshot.
type Quote struct {
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	HasBid bool
	HasAsk bool
}

// Spread returns ask minus bid, or false if either side is empty.
func (q *Quote) Spread() (decimal.Decimal, bool) {
	if !q.HasBid || !q.HasAsk {
		return decimal.Decimal{}, false
	}
	return q.Ask.Sub(q.Bid), true
}

// OrderBook serializes all access to one Book. Producers enqueue commands
// from any goroutine; a single goroutine running Start applies them one at a
// time, so every submit and cancel executes as an indivisible unit and reads
// never observe a ladder mid-mutation. Responses travel back on per-call
// channels, keeping the public API synchronous.
type OrderBook struct {
	isShutdown       atomic.Bool
	book             *Book
	cmdChan          chan Command
	done             chan struct{}
	shutdownComplete chan struct{}
}

// NewOrderBook creates a new order book instance. Start must be called
// before any commands are applied.
func NewOrderBook(publish PublishLog) *OrderBook {
	return &OrderBook{
		book:             NewBook(publish),
		cmdChan:          make(chan Command, 32768),
		done:             make(chan struct{}),
		shutdownComplete: make(chan struct{}),
	}
}

// Start runs the order book loop, processing submits, cancellations, amends
// and queries. Returns nil when Shutdown is called and all pending commands
// are drained.
func (book *OrderBook) Start() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-book.done:
			return book.drain()
		case cmd := <-book.cmdChan:
			book.apply(cmd)
		}
	}
}

// Shutdown signals the loop to stop accepting new commands and waits until
// everything already enqueued has been applied, or the context expires.
func (book *OrderBook) Shutdown(ctx context.Context) error {
	if book.isShutdown.CompareAndSwap(false, true) {
		close(book.done)
	}

	select {
	case <-book.shutdownComplete:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain applies all remaining commands so no enqueued waiter is left
// without a response.
func (book *OrderBook) drain() error {
	defer close(book.shutdownComplete)

	for {
		select {
		case cmd := <-book.cmdChan:
			book.apply(cmd)
		default:
			return nil
		}
	}
}

// apply executes one command against the core and replies if a response
// channel was provided.
func (book *OrderBook) apply(cmd Command) {
	var resp *Response

	switch cmd.Type {
	case CmdSubmitOrder:
		if req, ok := cmd.Payload.(*submitRequest); ok {
			orderID, trades, err := book.book.Submit(req.side, req.price, req.size)
			resp = &Response{Error: err, Data: &SubmitResult{OrderID: orderID, Trades: trades}}
		} else {
			resp = &Response{Error: ErrInvalidParam}
		}
	case CmdCancelOrder:
		if orderID, ok := cmd.Payload.(uint64); ok {
			resp = &Response{Data: book.book.Cancel(orderID)}
		} else {
			resp = &Response{Error: ErrInvalidParam}
		}
	case CmdAmendOrder:
		if req, ok := cmd.Payload.(*amendRequest); ok {
			found, trades, err := book.book.Amend(req.orderID, req.newPrice, req.newSize)
			resp = &Response{Error: err, Data: &AmendResult{Found: found, Trades: trades}}
		} else {
			resp = &Response{Error: ErrInvalidParam}
		}
	case CmdDepth:
		if levels, ok := cmd.Payload.(uint32); ok {
			depth, err := book.book.Depth(levels)
			resp = &Response{Error: err, Data: depth}
		} else {
			resp = &Response{Error: ErrInvalidParam}
		}
	case CmdQuote:
		quote := &Quote{}
		quote.Bid, quote.HasBid = book.book.BestBid()
		quote.Ask, quote.HasAsk = book.book.BestAsk()
		resp = &Response{Data: quote}
	case CmdGetStats:
		resp = &Response{Data: book.book.Stats()}
	case CmdSnapshot:
		resp = &Response{Data: book.book.Snapshot()}
	case CmdTrades:
		resp = &Response{Data: book.book.Trades()}
	default:
		resp = &Response{Error: ErrInvalidParam}
	}

	if cmd.Resp != nil {
		select {
		case cmd.Resp <- resp:
		default:
			// Non-blocking send, if no one is listening, just drop it
		}
	}
}

// SubmitOrder validates and submits a limit order, waiting for the result.
// Invalid input is rejected before anything is enqueued, so no order ID is
// allocated and no state changes.
func (book *OrderBook) SubmitOrder(ctx context.Context, side Side, price decimal.Decimal, size decimal.Decimal) (uint64, []Trade, error) {
	if book.isShutdown.Load() {
		return 0, nil, ErrShutdown
	}
	if side != Buy && side != Sell {
		return 0, nil, ErrInvalidSide
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return 0, nil, ErrInvalidPrice
	}
	if size.LessThanOrEqual(decimal.Zero) {
		return 0, nil, ErrInvalidSize
	}

	respChan := make(chan *Response, 1)

	select {
	case book.cmdChan <- Command{Type: CmdSubmitOrder, Payload: &submitRequest{side: side, price: price, size: size}, Resp: respChan}:
	case <-ctx.Done():
		return 0, nil, ErrTimeout
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return 0, nil, resp.Error
		}
		result, _ := resp.Data.(*SubmitResult)
		return result.OrderID, result.Trades, nil
	case <-ctx.Done():
		return 0, nil, ErrTimeout
	}
}

// CancelOrder cancels a resting order and reports whether it was found.
func (book *OrderBook) CancelOrder(ctx context.Context, orderID uint64) (bool, error) {
	if book.isShutdown.Load() {
		return false, ErrShutdown
	}

	respChan := make(chan *Response, 1)

	select {
	case book.cmdChan <- Command{Type: CmdCancelOrder, Payload: orderID, Resp: respChan}:
	case <-ctx.Done():
		return false, ErrTimeout
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return false, resp.Error
		}
		canceled, _ := resp.Data.(bool)
		return canceled, nil
	case <-ctx.Done():
		return false, ErrTimeout
	}
}

// AmendOrder modifies a resting order; see Book.Amend for the priority
// rules. Reports whether the order was found and any re-match trades.
func (book *OrderBook) AmendOrder(ctx context.Context, orderID uint64, newPrice decimal.Decimal, newSize decimal.Decimal) (bool, []Trade, error) {
	if book.isShutdown.Load() {
		return false, nil, ErrShutdown
	}
	if newPrice.LessThanOrEqual(decimal.Zero) {
		return false, nil, ErrInvalidPrice
	}
	if newSize.LessThanOrEqual(decimal.Zero) {
		return false, nil, ErrInvalidSize
	}

	respChan := make(chan *Response, 1)

	select {
	case book.cmdChan <- Command{Type: CmdAmendOrder, Payload: &amendRequest{orderID: orderID, newPrice: newPrice, newSize: newSize}, Resp: respChan}:
	case <-ctx.Done():
		return false, nil, ErrTimeout
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return false, nil, resp.Error
		}
		result, _ := resp.Data.(*AmendResult)
		return result.Found, result.Trades, nil
	case <-ctx.Done():
		return false, nil, ErrTimeout
	}
}

// query sends a read-only command through the loop so reads never observe a
// book mid-mutation.
func (book *OrderBook) query(cmdType CommandType, payload any) (*Response, error) {
	respChan := make(chan *Response, 1)

	select {
	case book.cmdChan <- Command{Type: cmdType, Payload: payload, Resp: respChan}:
	case <-time.After(time.Second):
		return nil, ErrTimeout
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp, nil
	case <-time.After(time.Second):
		return nil, ErrTimeout
	}
}

// Depth returns up to exactly levels aggregated price levels per side, best
// price first.
func (book *OrderBook) Depth(levels uint32) (*Depth, error) {
	if levels == 0 {
		return nil, ErrInvalidParam
	}

	resp, err := book.query(CmdDepth, levels)
	if err != nil {
		return nil, err
	}

	depth, _ := resp.Data.(*Depth)
	return depth, nil
}

// Quote returns the current top of book.
func (book *OrderBook) Quote() (*Quote, error) {
	resp, err := book.query(CmdQuote, nil)
	if err != nil {
		return nil, err
	}

	quote, _ := resp.Data.(*Quote)
	return quote, nil
}

// BestBid returns the highest resting bid price, or false if the bid side is
// empty.
func (book *OrderBook) BestBid() (decimal.Decimal, bool, error) {
	quote, err := book.Quote()
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return quote.Bid, quote.HasBid, nil
}

// BestAsk returns the lowest resting ask price, or false if the ask side is
// empty.
func (book *OrderBook) BestAsk() (decimal.Decimal, bool, error) {
	quote, err := book.Quote()
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return quote.Ask, quote.HasAsk, nil
}

// Spread returns best ask minus best bid, or false if either side is empty.
func (book *OrderBook) Spread() (decimal.Decimal, bool, error) {
	quote, err := book.Quote()
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	spread, ok := quote.Spread()
	return spread, ok, nil
}

// GetStats returns usage statistics for the order book.
func (book *OrderBook) GetStats() (*BookStats, error) {
	resp, err := book.query(CmdGetStats, nil)
	if err != nil {
		return nil, err
	}

	stats, _ := resp.Data.(*BookStats)
	return stats, nil
}

// Trades returns a copy of the full trade history, in execution order.
func (book *OrderBook) Trades() ([]Trade, error) {
	resp, err := book.query(CmdTrades, nil)
	if err != nil {
		return nil, err
	}

	trades, _ := resp.Data.([]Trade)
	return trades, nil
}

// TakeSnapshot captures the current resting state of the order book.
func (book *OrderBook) TakeSnapshot() (*BookSnapshot, error) {
	resp, err := book.query(CmdSnapshot, nil)
	if err != nil {
		return nil, err
	}

	snap, _ := resp.Data.(*BookSnapshot)
	return snap, nil
}

// Restore rebuilds the book from a snapshot. It must be called before Start.
func (book *OrderBook) Restore(snap *BookSnapshot) {
	book.book.Restore(snap)
}
