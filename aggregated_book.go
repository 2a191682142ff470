package lob

import (
	"sync"

	"github.com/igrmk/treemap/v2"
	"github.com/shopspring/decimal"
)

// AggregatedBook maintains a simplified view of the order book, tracking
// only price levels and their aggregated sizes (depth). It is the read side
// for consumers that rebuild book state from BookLog events: seed it from a
// snapshot, then replay events in sequence order.
//
// Reads and replays may run from different goroutines; reads never block the
// matching path.
type AggregatedBook struct {
	mu    sync.RWMutex
	seqID uint64 // Last processed SequenceID for gap detection and deduplication
	ask   *treemap.TreeMap[decimal.Decimal, decimal.Decimal]
	bid   *treemap.TreeMap[decimal.Decimal, decimal.Decimal]
}

func newSideTree() *treemap.TreeMap[decimal.Decimal, decimal.Decimal] {
	return treemap.NewWithKeyCompare[decimal.Decimal, decimal.Decimal](func(a, b decimal.Decimal) bool {
		return a.LessThan(b)
	})
}

// NewAggregatedBook creates a new AggregatedBook with empty ask and bid sides.
func NewAggregatedBook() *AggregatedBook {
	return &AggregatedBook{
		ask: newSideTree(),
		bid: newSideTree(),
	}
}

// SequenceID returns the last processed sequence ID.
// Used for synchronization and gap detection during rebuild.
func (ab *AggregatedBook) SequenceID() uint64 {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	return ab.seqID
}

// Replay applies a BookLog event to the aggregated state. Events at or below
// the current sequence are duplicates and are ignored; a jump past the next
// expected sequence returns ErrSequenceGap without mutating state, signaling
// that the caller must rebuild from a snapshot.
func (ab *AggregatedBook) Replay(log *BookLog) error {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	if log.SequenceID <= ab.seqID {
		return nil
	}
	if log.SequenceID != ab.seqID+1 {
		return ErrSequenceGap
	}

	ab.applyChange(CalculateDepthChange(log))
	ab.seqID = log.SequenceID

	return nil
}

// Publish lets an AggregatedBook act directly as a PublishLog sink. Events
// are applied synchronously, so no cloning is needed; a detected gap is
// logged and the event dropped.
func (ab *AggregatedBook) Publish(logs ...*BookLog) {
	for _, log := range logs {
		if err := ab.Replay(log); err != nil {
			logger.Warn("aggregated book dropped event",
				"seq_id", log.SequenceID,
				"last_seq_id", ab.SequenceID(),
				"error", err.Error())
		}
	}
}

// Rebuild resets the aggregated book from a snapshot. It replaces both sides
// with the snapshot's resting orders and adopts its sequence ID, after which
// Replay accepts the next event in sequence.
func (ab *AggregatedBook) Rebuild(snap *BookSnapshot) {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	ab.bid = newSideTree()
	ab.ask = newSideTree()

	for i := range snap.Bids {
		ab.addSize(ab.bid, snap.Bids[i].Price, snap.Bids[i].Size)
	}
	for i := range snap.Asks {
		ab.addSize(ab.ask, snap.Asks[i].Price, snap.Asks[i].Size)
	}

	ab.seqID = snap.SeqID
}

// DepthAt returns the aggregated size at a specific price level for the
// given side. Returns zero if the price level does not exist.
func (ab *AggregatedBook) DepthAt(side Side, price decimal.Decimal) decimal.Decimal {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	size, ok := ab.tree(side).Get(price)
	if !ok {
		return decimal.Zero
	}
	return size
}

// BestBid returns the highest bid level, or false if the bid side is empty.
func (ab *AggregatedBook) BestBid() (decimal.Decimal, bool) {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	it := ab.bid.Reverse()
	if !it.Valid() {
		return decimal.Decimal{}, false
	}
	return it.Key(), true
}

// BestAsk returns the lowest ask level, or false if the ask side is empty.
func (ab *AggregatedBook) BestAsk() (decimal.Decimal, bool) {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	it := ab.ask.Iterator()
	if !it.Valid() {
		return decimal.Decimal{}, false
	}
	return it.Key(), true
}

// Levels returns up to limit aggregated levels for the given side, best
// price first.
func (ab *AggregatedBook) Levels(side Side, limit int) []DepthItem {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	result := make([]DepthItem, 0, limit)

	if side == Buy {
		for it := ab.bid.Reverse(); it.Valid() && len(result) < limit; it.Next() {
			result = append(result, DepthItem{Price: it.Key(), Size: it.Value()})
		}
	} else {
		for it := ab.ask.Iterator(); it.Valid() && len(result) < limit; it.Next() {
			result = append(result, DepthItem{Price: it.Key(), Size: it.Value()})
		}
	}

	return result
}

// LevelCount returns the number of price levels on the given side.
func (ab *AggregatedBook) LevelCount(side Side) int {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	return ab.tree(side).Len()
}

func (ab *AggregatedBook) tree(side Side) *treemap.TreeMap[decimal.Decimal, decimal.Decimal] {
	if side == Buy {
		return ab.bid
	}
	return ab.ask
}

// applyChange folds a depth delta into a side, removing the level when it
// reaches zero. Callers hold the write lock.
func (ab *AggregatedBook) applyChange(change DepthChange) {
	if change.Side != Buy && change.Side != Sell {
		return
	}

	tree := ab.tree(change.Side)
	size := change.SizeDiff
	if current, ok := tree.Get(change.Price); ok {
		size = current.Add(change.SizeDiff)
	}

	if size.LessThanOrEqual(decimal.Zero) {
		tree.Del(change.Price)
	} else {
		tree.Set(change.Price, size)
	}
}

func (ab *AggregatedBook) addSize(tree *treemap.TreeMap[decimal.Decimal, decimal.Decimal], price, size decimal.Decimal) {
	if current, ok := tree.Get(price); ok {
		size = current.Add(size)
	}
	tree.Set(price, size)
}
