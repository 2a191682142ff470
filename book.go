package lob

import (
	"time"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

// Book is the matching core: both sides of the price ladder, the order
// index, and the trade ledger. It applies price-time priority: best price
// wins across levels, arrival order wins within a level.
//
// Book is not safe for concurrent use. All mutation must be serialized by
// the caller; OrderBook wraps a Book behind a single consuming goroutine.
type Book struct {
	id       string // instance id for log correlation
	bidQueue *queue
	askQueue *queue
	seqID    uint64 // BookLog sequence, gapless
	orderID  uint64 // last allocated order ID, never reused
	tradeID  uint64 // last allocated trade ID
	trades   []Trade
	publish  PublishLog
}

// NewBook creates an empty book. Events are delivered to publish; pass nil
// to discard them.
func NewBook(publish PublishLog) *Book {
	if publish == nil {
		publish = NewDiscardPublishLog()
	}
	return &Book{
		id:       xid.New().String(),
		bidQueue: NewBuyerQueue(),
		askQueue: NewSellerQueue(),
		trades:   make([]Trade, 0),
		publish:  publish,
	}
}

// Submit validates the order, matches it against the opposing side, and
// rests any remainder. It returns the allocated order ID and the trades
// generated by this call, in execution order. Validation failures happen
// before an ID is allocated and leave the book untouched.
func (b *Book) Submit(side Side, price decimal.Decimal, size decimal.Decimal) (uint64, []Trade, error) {
	if side != Buy && side != Sell {
		return 0, nil, ErrInvalidSide
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return 0, nil, ErrInvalidPrice
	}
	if size.LessThanOrEqual(decimal.Zero) {
		return 0, nil, ErrInvalidSize
	}

	b.orderID++
	order := &Order{
		ID:        b.orderID,
		Side:      side,
		Price:     price,
		Size:      size,
		Timestamp: time.Now().UnixNano(),
	}

	return order.ID, b.match(order), nil
}

// match walks the opposing ladder while the order's price is marketable,
// consuming makers front-first, and rests the remainder on the order's own
// side. The trade price is always the maker's quoted price.
func (b *Book) match(order *Order) []Trade {
	var myQueue, targetQueue *queue
	if order.Side == Buy {
		myQueue = b.bidQueue
		targetQueue = b.askQueue
	} else {
		myQueue = b.askQueue
		targetQueue = b.bidQueue
	}

	logs := make([]*BookLog, 0, 8)
	now := time.Now().UTC()
	var trades []Trade

	for order.Size.GreaterThan(decimal.Zero) {
		maker := targetQueue.peekHeadOrder()
		if maker == nil {
			break
		}

		if order.Side == Buy && order.Price.LessThan(maker.Price) ||
			order.Side == Sell && order.Price.GreaterThan(maker.Price) {
			// Best opposing price no longer marketable
			break
		}

		tradeSize := order.Size
		if maker.Size.LessThan(tradeSize) {
			tradeSize = maker.Size
		}

		b.tradeID++
		trade := Trade{
			ID:           b.tradeID,
			Price:        maker.Price,
			Size:         tradeSize,
			MakerOrderID: maker.ID,
			TakerOrderID: order.ID,
			CreatedAt:    now,
		}
		b.trades = append(b.trades, trade)
		trades = append(trades, trade)

		b.seqID++
		log := acquireBookLog()
		log.SequenceID = b.seqID
		log.TradeID = trade.ID
		log.Type = LogTypeMatch
		log.Side = order.Side
		log.Price = maker.Price
		log.Size = tradeSize
		log.OrderID = order.ID
		log.MakerOrderID = maker.ID
		log.CreatedAt = now
		logs = append(logs, log)

		order.Size = order.Size.Sub(tradeSize)

		if maker.Size.Equal(tradeSize) {
			// Maker fully filled: pop it and drop its index entry. An
			// emptied level is removed by the queue.
			targetQueue.popHeadOrder()
		} else {
			// Partial fill: decrement in place so the maker keeps the front
			// of its level and is hit first by the next taker.
			targetQueue.updateOrderSize(maker.ID, maker.Size.Sub(tradeSize))
		}
	}

	if order.Size.GreaterThan(decimal.Zero) {
		myQueue.insertOrder(order)

		b.seqID++
		log := acquireBookLog()
		log.SequenceID = b.seqID
		log.Type = LogTypeOpen
		log.Side = order.Side
		log.Price = order.Price
		log.Size = order.Size
		log.OrderID = order.ID
		log.CreatedAt = now
		logs = append(logs, log)
	}

	b.publishLogs(logs)

	return trades
}

// Cancel removes a resting order. It returns false if the ID is unknown:
// never issued, already filled, or already canceled. A detected index/ladder
// inconsistency is healed, logged, and also reported as false.
func (b *Book) Cancel(orderID uint64) bool {
	myQueue := b.bidQueue
	order := myQueue.order(orderID)
	if order == nil {
		myQueue = b.askQueue
		order = myQueue.order(orderID)
	}
	if order == nil {
		return false
	}

	removed, healed := myQueue.removeOrder(order.Price, orderID)
	if healed {
		logger.Warn("order index referenced a missing price level",
			"book_id", b.id,
			"order_id", orderID,
			"side", order.Side.String(),
			"price", order.Price.String())
		return false
	}
	if !removed {
		return false
	}

	b.seqID++
	log := acquireBookLog()
	log.SequenceID = b.seqID
	log.Type = LogTypeCancel
	log.Side = order.Side
	log.Price = order.Price
	log.Size = order.Size
	log.OrderID = order.ID
	log.CreatedAt = time.Now().UTC()
	b.publishLogs([]*BookLog{log})

	return true
}

// Amend modifies a resting order. A price change or a size increase loses
// time priority: the order is pulled and re-run through matching, so it may
// trade immediately and any remainder rests at the back of its new level. A
// size decrease at the same price updates in place and keeps priority.
// Returns false if the order is not resting; the second result holds trades
// generated by a re-match.
func (b *Book) Amend(orderID uint64, newPrice decimal.Decimal, newSize decimal.Decimal) (bool, []Trade, error) {
	if newPrice.LessThanOrEqual(decimal.Zero) {
		return false, nil, ErrInvalidPrice
	}
	if newSize.LessThanOrEqual(decimal.Zero) {
		return false, nil, ErrInvalidSize
	}

	myQueue := b.bidQueue
	order := myQueue.order(orderID)
	if order == nil {
		myQueue = b.askQueue
		order = myQueue.order(orderID)
	}
	if order == nil {
		return false, nil, nil
	}

	oldPrice := order.Price
	oldSize := order.Size

	now := time.Now().UTC()

	if !oldPrice.Equal(newPrice) || newSize.GreaterThan(oldSize) {
		// Priority lost: remove and re-enter the matching path
		removed, healed := myQueue.removeOrder(oldPrice, orderID)
		if healed {
			logger.Warn("order index referenced a missing price level",
				"book_id", b.id,
				"order_id", orderID,
				"side", order.Side.String(),
				"price", oldPrice.String())
			return false, nil, nil
		}
		if !removed {
			return false, nil, nil
		}

		order.Price = newPrice
		order.Size = newSize

		// Publish the amend first to establish the new state; the re-match
		// emits its own match/open events after it.
		b.seqID++
		log := acquireBookLog()
		log.SequenceID = b.seqID
		log.Type = LogTypeAmend
		log.Side = order.Side
		log.Price = newPrice
		log.Size = newSize
		log.OldPrice = oldPrice
		log.OldSize = oldSize
		log.OrderID = order.ID
		log.CreatedAt = now
		b.publishLogs([]*BookLog{log})

		return true, b.match(order), nil
	}

	// Priority kept: update in place
	if newSize.LessThan(oldSize) {
		myQueue.updateOrderSize(orderID, newSize)
	}

	b.seqID++
	log := acquireBookLog()
	log.SequenceID = b.seqID
	log.Type = LogTypeAmend
	log.Side = order.Side
	log.Price = newPrice
	log.Size = newSize
	log.OldPrice = oldPrice
	log.OldSize = oldSize
	log.OrderID = order.ID
	log.CreatedAt = now
	b.publishLogs([]*BookLog{log})

	return true, nil, nil
}

// BestBid returns the highest resting bid price, or false if the bid side is
// empty.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	return b.bidQueue.bestPrice()
}

// BestAsk returns the lowest resting ask price, or false if the ask side is
// empty.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	return b.askQueue.bestPrice()
}

// Spread returns best ask minus best bid, or false if either side is empty.
func (b *Book) Spread() (decimal.Decimal, bool) {
	bid, ok := b.bidQueue.bestPrice()
	if !ok {
		return decimal.Decimal{}, false
	}
	ask, ok := b.askQueue.bestPrice()
	if !ok {
		return decimal.Decimal{}, false
	}
	return ask.Sub(bid), true
}

// Depth returns up to exactly levels aggregated price levels per side, best
// price first. levels must be positive.
func (b *Book) Depth(levels uint32) (*Depth, error) {
	if levels == 0 {
		return nil, ErrInvalidParam
	}
	return &Depth{
		UpdateID: b.seqID,
		Bids:     b.bidQueue.depth(levels),
		Asks:     b.askQueue.depth(levels),
	}, nil
}

// Order returns a copy of a resting order by ID.
func (b *Book) Order(orderID uint64) (Order, bool) {
	order := b.bidQueue.order(orderID)
	if order == nil {
		order = b.askQueue.order(orderID)
	}
	if order == nil {
		return Order{}, false
	}
	cpy := *order
	cpy.next = nil
	cpy.prev = nil
	return cpy, true
}

// Trades returns a copy of the full trade history, in execution order.
func (b *Book) Trades() []Trade {
	trades := make([]Trade, len(b.trades))
	copy(trades, b.trades)
	return trades
}

// TradeCount returns the number of trades executed so far.
func (b *Book) TradeCount() int {
	return len(b.trades)
}

// Stats returns per-side order and level counts.
func (b *Book) Stats() *BookStats {
	return &BookStats{
		AskDepthCount: b.askQueue.depthCount(),
		AskOrderCount: b.askQueue.orderCount(),
		BidDepthCount: b.bidQueue.depthCount(),
		BidOrderCount: b.bidQueue.orderCount(),
	}
}

// publishLogs hands the logs to the sink and recycles them. Sinks must
// consume or clone synchronously; see PublishLog.
func (b *Book) publishLogs(logs []*BookLog) {
	if len(logs) == 0 {
		return
	}
	b.publish.Publish(logs...)
	for _, log := range logs {
		releaseBookLog(log)
	}
}
