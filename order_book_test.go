package lob

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startOrderBook(t *testing.T, publish PublishLog) *OrderBook {
	t.Helper()

	book := NewOrderBook(publish)
	go func() {
		_ = book.Start()
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = book.Shutdown(ctx)
	})

	return book
}

func TestOrderBookSubmitAndQuery(t *testing.T) {
	ctx := context.Background()
	book := startOrderBook(t, nil)

	orderID, trades, err := book.SubmitOrder(ctx, Buy, dec("99"), dec("10"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), orderID)
	assert.Empty(t, trades)

	_, _, err = book.SubmitOrder(ctx, Sell, dec("101"), dec("15"))
	require.NoError(t, err)

	bid, ok, err := book.BestBid()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "99", bid.String())

	ask, ok, err := book.BestAsk()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "101", ask.String())

	spread, ok, err := book.Spread()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", spread.String())

	depth, err := book.Depth(5)
	require.NoError(t, err)
	assert.Len(t, depth.Bids, 1)
	assert.Len(t, depth.Asks, 1)

	stats, err := book.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.BidOrderCount)
	assert.Equal(t, int64(1), stats.AskOrderCount)
}

func TestOrderBookEmptyQuote(t *testing.T) {
	book := startOrderBook(t, nil)

	_, ok, err := book.BestBid()
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = book.BestAsk()
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = book.Spread()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderBookMatchReturnsTrades(t *testing.T) {
	ctx := context.Background()
	book := startOrderBook(t, nil)

	makerID, _, err := book.SubmitOrder(ctx, Sell, dec("100"), dec("10"))
	require.NoError(t, err)

	takerID, trades, err := book.SubmitOrder(ctx, Buy, dec("100"), dec("4"))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, makerID, trades[0].MakerOrderID)
	assert.Equal(t, takerID, trades[0].TakerOrderID)
	assert.Equal(t, "4", trades[0].Size.String())

	ledger, err := book.Trades()
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
}

func TestOrderBookValidation(t *testing.T) {
	ctx := context.Background()
	book := startOrderBook(t, nil)

	_, _, err := book.SubmitOrder(ctx, Side(9), dec("100"), dec("10"))
	assert.ErrorIs(t, err, ErrInvalidSide)

	_, _, err = book.SubmitOrder(ctx, Sell, dec("-10"), dec("10"))
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, _, err = book.SubmitOrder(ctx, Sell, dec("100"), dec("-5"))
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = book.Depth(0)
	assert.ErrorIs(t, err, ErrInvalidParam)

	stats, err := book.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.BidOrderCount+stats.AskOrderCount)
}

func TestOrderBookCancel(t *testing.T) {
	ctx := context.Background()
	book := startOrderBook(t, nil)

	orderID, _, err := book.SubmitOrder(ctx, Buy, dec("99"), dec("10"))
	require.NoError(t, err)

	canceled, err := book.CancelOrder(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, canceled)

	canceled, err = book.CancelOrder(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, canceled)

	canceled, err = book.CancelOrder(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, canceled)
}

func TestOrderBookAmend(t *testing.T) {
	ctx := context.Background()
	book := startOrderBook(t, nil)

	askID, _, err := book.SubmitOrder(ctx, Sell, dec("101"), dec("5"))
	require.NoError(t, err)
	bidID, _, err := book.SubmitOrder(ctx, Buy, dec("99"), dec("5"))
	require.NoError(t, err)

	found, trades, err := book.AmendOrder(ctx, bidID, dec("101"), dec("5"))
	require.NoError(t, err)
	assert.True(t, found)
	require.Len(t, trades, 1)
	assert.Equal(t, askID, trades[0].MakerOrderID)

	found, _, err = book.AmendOrder(ctx, 777, dec("100"), dec("1"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOrderBookShutdown(t *testing.T) {
	ctx := context.Background()

	book := NewOrderBook(nil)
	go func() {
		_ = book.Start()
	}()

	_, _, err := book.SubmitOrder(ctx, Buy, dec("99"), dec("1"))
	require.NoError(t, err)

	err = book.Shutdown(ctx)
	require.NoError(t, err)

	_, _, err = book.SubmitOrder(ctx, Buy, dec("99"), dec("1"))
	assert.ErrorIs(t, err, ErrShutdown)

	_, err = book.CancelOrder(ctx, 1)
	assert.ErrorIs(t, err, ErrShutdown)

	// Shutdown is idempotent
	err = book.Shutdown(ctx)
	assert.NoError(t, err)
}

func TestOrderBookRestore(t *testing.T) {
	ctx := context.Background()

	source := startOrderBook(t, nil)
	_, _, err := source.SubmitOrder(ctx, Buy, dec("99"), dec("10"))
	require.NoError(t, err)
	_, _, err = source.SubmitOrder(ctx, Sell, dec("101"), dec("5"))
	require.NoError(t, err)

	snap, err := source.TakeSnapshot()
	require.NoError(t, err)

	restored := NewOrderBook(nil)
	restored.Restore(snap)
	go func() {
		_ = restored.Start()
	}()
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = restored.Shutdown(shutdownCtx)
	})

	stats, err := restored.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.BidOrderCount)
	assert.Equal(t, int64(1), stats.AskOrderCount)

	// The restored book continues matching
	_, trades, err := restored.SubmitOrder(ctx, Sell, dec("99"), dec("10"))
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

// Many producers hammer the serialized front end; afterwards every submitted
// unit of size must be accounted for by trades (which consume size on both
// sides) or by resting orders, and the book must not be crossed.
func TestOrderBookConcurrentConservation(t *testing.T) {
	ctx := context.Background()
	book := startOrderBook(t, nil)

	const producers = 8
	const perProducer = 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < perProducer; i++ {
				side := Buy
				if rnd.Intn(2) == 0 {
					side = Sell
				}
				price := decimal.NewFromInt(int64(90 + rnd.Intn(21)))
				_, _, err := book.SubmitOrder(ctx, side, price, decimal.NewFromInt(1))
				assert.NoError(t, err)
			}
		}(int64(p))
	}
	wg.Wait()

	totalSubmitted := decimal.NewFromInt(producers * perProducer)

	ledger, err := book.Trades()
	require.NoError(t, err)
	matched := decimal.Zero
	for _, trade := range ledger {
		matched = matched.Add(trade.Size)
	}

	depth, err := book.Depth(64)
	require.NoError(t, err)
	resting := decimal.Zero
	for _, item := range depth.Bids {
		resting = resting.Add(item.Size)
	}
	for _, item := range depth.Asks {
		resting = resting.Add(item.Size)
	}

	// Each trade consumes one unit of taker size and one of maker size
	accounted := matched.Mul(decimal.NewFromInt(2)).Add(resting)
	assert.True(t, accounted.Equal(totalSubmitted),
		"2*matched %s + resting %s != submitted %s", matched, resting, totalSubmitted)

	quote, err := book.Quote()
	require.NoError(t, err)
	if quote.HasBid && quote.HasAsk {
		assert.True(t, quote.Bid.LessThan(quote.Ask),
			"book crossed: bid %s >= ask %s", quote.Bid, quote.Ask)
	}
}

// Interleaved submits and cancels must leave the index and ladder in
// agreement: every snapshot order is unique and the counts match the stats.
func TestOrderBookConcurrentCancelConsistency(t *testing.T) {
	ctx := context.Background()
	book := startOrderBook(t, nil)

	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			var lastID uint64
			for i := 0; i < perProducer; i++ {
				side := Buy
				if rnd.Intn(2) == 0 {
					side = Sell
				}
				price := decimal.NewFromInt(int64(90 + rnd.Intn(21)))
				orderID, _, err := book.SubmitOrder(ctx, side, price, decimal.NewFromInt(1))
				assert.NoError(t, err)

				if rnd.Intn(3) == 0 && lastID != 0 {
					_, err := book.CancelOrder(ctx, lastID)
					assert.NoError(t, err)
				}
				lastID = orderID
			}
		}(int64(1000 + p))
	}
	wg.Wait()

	snap, err := book.TakeSnapshot()
	require.NoError(t, err)
	stats, err := book.GetStats()
	require.NoError(t, err)

	assert.Equal(t, stats.BidOrderCount, int64(len(snap.Bids)))
	assert.Equal(t, stats.AskOrderCount, int64(len(snap.Asks)))

	seen := make(map[uint64]struct{}, len(snap.Bids)+len(snap.Asks))
	for _, order := range append(snap.Bids, snap.Asks...) {
		_, dup := seen[order.ID]
		assert.False(t, dup, "order %d rests in more than one location", order.ID)
		seen[order.ID] = struct{}{}
	}

	quote, err := book.Quote()
	require.NoError(t, err)
	if quote.HasBid && quote.HasAsk {
		assert.True(t, quote.Bid.LessThan(quote.Ask))
	}
}
