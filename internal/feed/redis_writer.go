package feed

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"

	"github.com/evvm-org/p2pswap/internal/message"
	"github.com/evvm-org/p2pswap/internal/p2pswap"
)

// Redis keys mirrored by RedisWriter.
const (
	ReservesKey   = "p2pswap:reserves"
	ParametersKey = "p2pswap:parameters"
)

// MarketKey is the hash holding a market's metadata.
func MarketKey(marketID uint64) string {
	return fmt.Sprintf("p2pswap:market:%d", marketID)
}

// OrderKey is the hash holding one open order.
func OrderKey(marketID, orderID uint64) string {
	return fmt.Sprintf("p2pswap:order:%d:%d", marketID, orderID)
}

// RedisClient abstracts the Redis operations used by RedisWriter.
// In production this is satisfied by NewRedisClient; in tests by a mock.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...any) error
	Del(ctx context.Context, keys ...string) error
}

// Book is the read side of the engine used to rebuild the mirror.
type Book interface {
	GetAllMarketsMetadata() []p2pswap.Market
	GetAllMarketOrders(marketID uint64) []p2pswap.OrderView
	GetBalanceOfContract(asset common.Address) *uint256.Int
}

// marketSnapshot is the last-written market hash, used to skip duplicate
// writes.
type marketSnapshot struct {
	MaxSlot         uint64
	OrdersAvailable uint64
}

// RedisWriter mirrors the order book into Redis using the schema:
//
//	p2pswap:market:{id}           tokenA, tokenB, maxSlot, ordersAvailable
//	p2pswap:order:{market}:{slot} seller, amountA, amountB
//	p2pswap:reserves              {asset}: reserve
//	p2pswap:parameters            {name}: value
//
// Order hashes are deleted when their slot empties. Writes are buffered
// and flushed by a dedicated goroutine so the hub is never blocked.
//
// The mirror is best-effort: an event that does not fit the buffer is
// dropped. With WithResync the writer rebuilds markets, orders and reserves
// from the book after a drop and on a fixed interval, so the mirror
// converges on the engine state. Events the hub drops before they reach
// the writer are repaired by the interval resync only. Parameters are only
// written on change.
type RedisWriter struct {
	client RedisClient
	feed   <-chan p2pswap.Event
	buf    chan p2pswap.Event

	book   Book
	every  time.Duration
	resync chan struct{}

	mu     sync.Mutex
	last   map[uint64]marketSnapshot
	assets map[common.Address]struct{}
}

// RedisWriterOption configures a RedisWriter.
type RedisWriterOption func(*RedisWriter)

// WithResync rebuilds the mirror from book after dropped events and every
// interval. A non-positive interval only resyncs after drops.
func WithResync(book Book, interval time.Duration) RedisWriterOption {
	return func(rw *RedisWriter) {
		rw.book = book
		rw.every = interval
	}
}

// WithBufferSize sets how many events may wait for a flush.
func WithBufferSize(n int) RedisWriterOption {
	return func(rw *RedisWriter) {
		if n > 0 {
			rw.buf = make(chan p2pswap.Event, n)
		}
	}
}

// NewRedisWriter creates a RedisWriter that reads from feed, typically a
// Hub.SubscribeAll channel.
func NewRedisWriter(client RedisClient, feed <-chan p2pswap.Event, opts ...RedisWriterOption) *RedisWriter {
	rw := &RedisWriter{
		client: client,
		feed:   feed,
		buf:    make(chan p2pswap.Event, 1024),
		resync: make(chan struct{}, 1),
		last:   make(map[uint64]marketSnapshot),
		assets: make(map[common.Address]struct{}),
	}
	for _, opt := range opts {
		opt(rw)
	}
	return rw
}

// Run drains the feed into an internal buffer and flushes it to Redis. It
// blocks until ctx is cancelled.
func (rw *RedisWriter) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-rw.feed:
				if !ok {
					return
				}
				rw.enqueue(ev)
			}
		}
	}()

	go func() {
		defer wg.Done()
		var tick <-chan time.Time
		if rw.book != nil && rw.every > 0 {
			ticker := time.NewTicker(rw.every)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-rw.buf:
				if err := rw.write(ctx, ev); err != nil {
					log.WithField("component", "redis").WithError(err).Error("redis writer: write failed")
				}
			case <-rw.resync:
				rw.runResync(ctx, "dropped events")
			case <-tick:
				rw.runResync(ctx, "interval")
			}
		}
	}()

	wg.Wait()
}

// enqueue hands ev to the flusher, dropping it when the buffer is full.
func (rw *RedisWriter) enqueue(ev p2pswap.Event) {
	select {
	case rw.buf <- ev:
		return
	default:
	}

	entry := log.WithFields(log.Fields{
		"component": "redis",
		"kind":      ev.Kind,
		"market":    ev.Market.ID,
	})
	if rw.book == nil {
		entry.Error("redis writer: buffer full, event dropped and mirror is stale")
		return
	}
	entry.Error("redis writer: buffer full, event dropped; scheduling resync")
	select {
	case rw.resync <- struct{}{}:
	default:
	}
}

func (rw *RedisWriter) runResync(ctx context.Context, reason string) {
	if err := rw.Resync(ctx); err != nil {
		log.WithFields(log.Fields{"component": "redis", "reason": reason}).WithError(err).Error("redis writer: resync failed")
		return
	}
	log.WithFields(log.Fields{"component": "redis", "reason": reason}).Debug("redis writer: resynced")
}

// Resync rewrites every market, open order and known reserve from the book
// and deletes order hashes of empty slots. It is a no-op without a book.
func (rw *RedisWriter) Resync(ctx context.Context) error {
	if rw.book == nil {
		return nil
	}

	rw.mu.Lock()
	rw.last = make(map[uint64]marketSnapshot)
	rw.mu.Unlock()

	for _, m := range rw.book.GetAllMarketsMetadata() {
		if err := rw.writeMarket(ctx, m); err != nil {
			return err
		}
		rw.trackAsset(m.TokenA)
		rw.trackAsset(m.TokenB)

		live := make(map[uint64]bool)
		for _, o := range rw.book.GetAllMarketOrders(m.ID) {
			live[o.OrderID] = true
			if err := rw.writeOrder(ctx, m.ID, o.OrderID, o.Seller, o.AmountA, o.AmountB); err != nil {
				return err
			}
		}
		var empty []string
		for slot := uint64(1); slot <= m.MaxSlot; slot++ {
			if !live[slot] {
				empty = append(empty, OrderKey(m.ID, slot))
			}
		}
		if len(empty) > 0 {
			if err := rw.client.Del(ctx, empty...); err != nil {
				return err
			}
		}
	}

	rw.mu.Lock()
	assets := make([]common.Address, 0, len(rw.assets))
	for a := range rw.assets {
		assets = append(assets, a)
	}
	rw.mu.Unlock()
	for _, a := range assets {
		if err := rw.client.HSet(ctx, ReservesKey, message.Address(a), rw.book.GetBalanceOfContract(a).Dec()); err != nil {
			return err
		}
	}
	return nil
}

func (rw *RedisWriter) trackAsset(a common.Address) {
	rw.mu.Lock()
	rw.assets[a] = struct{}{}
	rw.mu.Unlock()
}

// write applies one event to the mirror.
func (rw *RedisWriter) write(ctx context.Context, ev p2pswap.Event) error {
	switch ev.Kind {
	case p2pswap.EventMarketCreated:
		return rw.writeMarket(ctx, ev.Market)
	case p2pswap.EventOrderOpened:
		o := ev.Order
		if err := rw.writeOrder(ctx, ev.Market.ID, ev.OrderID, o.Seller, o.AmountA, o.AmountB); err != nil {
			return err
		}
		return rw.writeMarket(ctx, ev.Market)
	case p2pswap.EventOrderCancelled, p2pswap.EventOrderFilled:
		if err := rw.client.Del(ctx, OrderKey(ev.Market.ID, ev.OrderID)); err != nil {
			return err
		}
		return rw.writeMarket(ctx, ev.Market)
	case p2pswap.EventReserveChanged:
		rw.trackAsset(ev.Asset)
		return rw.client.HSet(ctx, ReservesKey, message.Address(ev.Asset), ev.Reserve.Dec())
	case p2pswap.EventParameterChanged:
		return rw.client.HSet(ctx, ParametersKey, ev.Parameter, ev.Value)
	}
	return nil
}

func (rw *RedisWriter) writeOrder(ctx context.Context, marketID, orderID uint64, seller common.Address, amountA, amountB *uint256.Int) error {
	return rw.client.HSet(ctx, OrderKey(marketID, orderID),
		"seller", message.Address(seller),
		"amountA", message.Uint(amountA),
		"amountB", message.Uint(amountB),
	)
}

// writeMarket issues an HSET for m unless its counters are unchanged.
func (rw *RedisWriter) writeMarket(ctx context.Context, m p2pswap.Market) error {
	snap := marketSnapshot{MaxSlot: m.MaxSlot, OrdersAvailable: m.OrdersAvailable}

	rw.mu.Lock()
	prev, exists := rw.last[m.ID]
	if exists && prev == snap {
		rw.mu.Unlock()
		return nil
	}
	rw.last[m.ID] = snap
	rw.mu.Unlock()

	return rw.client.HSet(ctx, MarketKey(m.ID),
		"tokenA", message.Address(m.TokenA),
		"tokenB", message.Address(m.TokenB),
		"maxSlot", strconv.FormatUint(m.MaxSlot, 10),
		"ordersAvailable", strconv.FormatUint(m.OrdersAvailable, 10),
	)
}
