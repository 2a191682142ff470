package lob

import (
	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

// priceLevel holds the FIFO of resting orders at one exact price, plus the
// aggregated size across them. A level never exists with an empty list: it is
// created on first insert and removed the instant its last order leaves.
type priceLevel struct {
	price     decimal.Decimal
	totalSize decimal.Decimal
	head      *Order
	tail      *Order
	count     int64
}

// queue is one side of the price ladder: a skip list of price levels ordered
// best-first plus the order index for O(1) cancellation. Level lookup goes
// through the skip list's comparator so prices compare by value; the decimal
// type's textual form is scale sensitive ("99.5" vs "99.50") and would split
// one logical level if used as a map key.
type queue struct {
	side        Side
	totalOrders int64
	depths      int64
	depthList   *skiplist.SkipList
	orders      map[uint64]*Order
}

// NewBuyerQueue creates a new queue for buy orders (bids).
// The levels are sorted by price in descending order (highest price first).
func NewBuyerQueue() *queue {
	return &queue{
		side: Buy,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)

			if d1.LessThan(d2) {
				return 1
			} else if d1.GreaterThan(d2) {
				return -1
			}

			return 0
		})),
		orders: make(map[uint64]*Order),
	}
}

// NewSellerQueue creates a new queue for sell orders (asks).
// The levels are sorted by price in ascending order (lowest price first).
func NewSellerQueue() *queue {
	return &queue{
		side: Sell,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)

			if d1.GreaterThan(d2) {
				return 1
			} else if d1.LessThan(d2) {
				return -1
			}

			return 0
		})),
		orders: make(map[uint64]*Order),
	}
}

// order finds an order by its ID.
func (q *queue) order(id uint64) *Order {
	return q.orders[id]
}

// insertOrder appends an order to the tail of its price level's FIFO,
// creating the level if it does not exist yet.
func (q *queue) insertOrder(order *Order) {
	el := q.depthList.Get(order.Price)
	if el != nil {
		level, _ := el.Value.(*priceLevel)

		order.prev = level.tail
		order.next = nil
		if level.tail != nil {
			level.tail.next = order
		}
		level.tail = order
		if level.head == nil {
			level.head = order
		}

		level.totalSize = level.totalSize.Add(order.Size)
		level.count++
		q.orders[order.ID] = order
		q.totalOrders++
	} else {
		level := &priceLevel{
			price:     order.Price,
			head:      order,
			tail:      order,
			totalSize: order.Size,
			count:     1,
		}
		order.next = nil
		order.prev = nil

		q.orders[order.ID] = order
		q.depthList.Set(order.Price, level)

		q.totalOrders++
		q.depths++
	}
}

// removeOrder unlinks the order from its price level FIFO, position
// independent, and removes the level once it empties. The second result
// reports a healed inconsistency: the index knew the order but the ladder had
// no level at its price, in which case the stale index entry is dropped and
// nothing else changes.
func (q *queue) removeOrder(price decimal.Decimal, id uint64) (removed bool, healed bool) {
	order, ok := q.orders[id]
	if !ok {
		return false, false
	}

	skipElement := q.depthList.Get(price)
	if skipElement == nil {
		// The ladder lost the level while the index kept the order. Drop the
		// stale entry so the index cannot dangle.
		delete(q.orders, id)
		q.totalOrders--
		return false, true
	}
	level, _ := skipElement.Value.(*priceLevel)

	// Unlink from the FIFO
	if order.prev != nil {
		order.prev.next = order.next
	} else {
		level.head = order.next
	}

	if order.next != nil {
		order.next.prev = order.prev
	} else {
		level.tail = order.prev
	}

	// Clear pointers to avoid leaks
	order.next = nil
	order.prev = nil

	level.totalSize = level.totalSize.Sub(order.Size)
	level.count--
	delete(q.orders, id)
	q.totalOrders--

	if level.count == 0 {
		q.depthList.RemoveElement(skipElement)
		q.depths--
	}

	return true, false
}

// updateOrderSize decreases the size of an order in place.
// The order keeps its position in the level FIFO, so time priority is kept.
func (q *queue) updateOrderSize(id uint64, newSize decimal.Decimal) {
	order, ok := q.orders[id]
	if !ok {
		return
	}

	skipElement := q.depthList.Get(order.Price)
	if skipElement != nil {
		level, _ := skipElement.Value.(*priceLevel)
		diff := order.Size.Sub(newSize)
		level.totalSize = level.totalSize.Sub(diff)
		order.Size = newSize
	}
}

// peekHeadOrder returns the order at the front of the best price level
// without removing it.
func (q *queue) peekHeadOrder() *Order {
	el := q.depthList.Front()
	if el == nil {
		return nil
	}

	level, _ := el.Value.(*priceLevel)
	return level.head
}

// popHeadOrder removes and returns the order at the front of the best level.
func (q *queue) popHeadOrder() *Order {
	ord := q.peekHeadOrder()

	if ord != nil {
		q.removeOrder(ord.Price, ord.ID)
	}

	return ord
}

// bestPrice returns the top price of this side, or false if the side is empty.
func (q *queue) bestPrice() (decimal.Decimal, bool) {
	el := q.depthList.Front()
	if el == nil {
		return decimal.Decimal{}, false
	}

	level, _ := el.Value.(*priceLevel)
	return level.price, true
}

// orderCount returns the total number of orders in the queue.
func (q *queue) orderCount() int64 {
	return q.totalOrders
}

// depthCount returns the number of price levels in the queue.
func (q *queue) depthCount() int64 {
	return q.depths
}

// toSnapshot serializes the queue into a slice of Order values, best price
// first and FIFO within each level, preserving priority.
func (q *queue) toSnapshot() []Order {
	snapshots := make([]Order, 0, q.totalOrders)

	elem := q.depthList.Front()
	for elem != nil {
		level := elem.Value.(*priceLevel)

		order := level.head
		for order != nil {
			snapshots = append(snapshots, Order{
				ID:        order.ID,
				Side:      order.Side,
				Price:     order.Price,
				Size:      order.Size,
				Timestamp: order.Timestamp,
			})
			order = order.next
		}

		elem = elem.Next()
	}

	return snapshots
}

// depth returns up to limit aggregated price levels, best price first.
func (q *queue) depth(limit uint32) []DepthItem {
	result := make([]DepthItem, 0, limit)

	el := q.depthList.Front()

	var i uint32 = 0
	for i < limit && el != nil {
		level, _ := el.Value.(*priceLevel)
		result = append(result, DepthItem{
			Price: level.price,
			Size:  level.totalSize,
		})

		el = el.Next()
		i++
	}

	return result
}
