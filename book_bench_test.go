package lob

import (
	"context"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func BenchmarkBookSubmit(b *testing.B) {
	book := NewBook(NewDiscardPublishLog())
	rnd := rand.New(rand.NewSource(1))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		side := Buy
		if i%2 == 0 {
			side = Sell
		}
		price := decimal.NewFromInt(int64(rnd.Intn(1000) + 1))
		_, _, _ = book.Submit(side, price, decimal.NewFromInt(1))
	}
}

func BenchmarkOrderBookSubmit(b *testing.B) {
	ctx := context.Background()
	book := NewOrderBook(NewDiscardPublishLog())
	go func() {
		_ = book.Start()
	}()
	defer func() {
		_ = book.Shutdown(context.Background())
	}()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			side := Buy
			if rnd.Intn(2) == 0 {
				side = Sell
			}
			price := decimal.NewFromInt(int64(rnd.Intn(1000) + 1))
			_, _, _ = book.SubmitOrder(ctx, side, price, decimal.NewFromInt(1))
		}
	})
}
