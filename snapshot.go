package lob

// BookSnapshot contains the full resting state of a Book: every order per
// side in priority order (best price first, FIFO within a level) plus the
// counters needed to continue issuing IDs without reuse.
type BookSnapshot struct {
	SeqID       uint64  `json:"seq_id"`
	LastOrderID uint64  `json:"last_order_id"`
	TradeID     uint64  `json:"trade_id"`
	Bids        []Order `json:"bids"`
	Asks        []Order `json:"asks"`
}

// Snapshot captures the current resting state of the book.
func (b *Book) Snapshot() *BookSnapshot {
	return &BookSnapshot{
		SeqID:       b.seqID,
		LastOrderID: b.orderID,
		TradeID:     b.tradeID,
		Bids:        b.bidQueue.toSnapshot(),
		Asks:        b.askQueue.toSnapshot(),
	}
}

// Restore resets the book and rebuilds it from a snapshot. Orders are
// inserted in snapshot order, which preserves priority because snapshots are
// written best price first and FIFO within each level. The trade ledger is
// not part of a snapshot; counters continue from the snapshot values so IDs
// are never reused.
func (b *Book) Restore(snap *BookSnapshot) {
	b.seqID = snap.SeqID
	b.orderID = snap.LastOrderID
	b.tradeID = snap.TradeID

	b.bidQueue = NewBuyerQueue()
	b.askQueue = NewSellerQueue()

	for i := range snap.Bids {
		order := snap.Bids[i]
		b.bidQueue.insertOrder(&order)
	}
	for i := range snap.Asks {
		order := snap.Asks[i]
		b.askQueue.insertOrder(&order)
	}
}
