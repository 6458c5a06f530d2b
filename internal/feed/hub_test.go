package feed

import (
	"context"
	"testing"
	"time"

	"github.com/evvm-org/p2pswap/internal/p2pswap"
)

func recv(t *testing.T, ch <-chan p2pswap.Event) p2pswap.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return p2pswap.Event{}
}

func TestHub_FilteredAndAll(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	m1 := hub.Subscribe(1)
	m2 := hub.Subscribe(2)
	all := hub.SubscribeAll()

	hub.Publish(p2pswap.Event{Kind: p2pswap.EventOrderOpened, Market: p2pswap.Market{ID: 1}, OrderID: 3})
	hub.Publish(p2pswap.Event{Kind: p2pswap.EventParameterChanged, Parameter: p2pswap.ParamPercentageFee, Value: "250"})

	if ev := recv(t, m1); ev.OrderID != 3 {
		t.Fatalf("unexpected event on market 1: %+v", ev)
	}
	if ev := recv(t, all); ev.Kind != p2pswap.EventOrderOpened {
		t.Fatalf("expected order_opened first, got %s", ev.Kind)
	}
	if ev := recv(t, all); ev.Kind != p2pswap.EventParameterChanged {
		t.Fatalf("expected parameter_changed, got %s", ev.Kind)
	}

	select {
	case ev := <-m2:
		t.Fatalf("market 2 should receive nothing, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	sub := hub.Subscribe(1)
	all := hub.SubscribeAll()
	hub.Unsubscribe(sub)

	if _, ok := <-sub; ok {
		t.Fatal("expected unsubscribed channel to be closed")
	}

	hub.Publish(p2pswap.Event{Kind: p2pswap.EventOrderOpened, Market: p2pswap.Market{ID: 1}})
	recv(t, all)

	hub.Unsubscribe(all)
	if _, ok := <-all; ok {
		t.Fatal("expected unsubscribed channel to be closed")
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	_ = hub.Subscribe(1) // never drained
	fast := hub.SubscribeAll()

	for i := 0; i < 600; i++ {
		hub.Publish(p2pswap.Event{Kind: p2pswap.EventOrderOpened, Market: p2pswap.Market{ID: 1}, OrderID: uint64(i)})
		recv(t, fast)
	}
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	h := NewHub()
	market := h.Subscribe(1)
	all := h.SubscribeAll()

	h.Close()

	if _, ok := <-market; ok {
		t.Fatal("market subscription should be closed")
	}
	if _, ok := <-all; ok {
		t.Fatal("unfiltered subscription should be closed")
	}
	// Unsubscribing after Close is a no-op.
	h.Unsubscribe(all)
}
