package p2pswap

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind identifies what changed.
type EventKind string

const (
	EventMarketCreated    EventKind = "market_created"
	EventOrderOpened      EventKind = "order_opened"
	EventOrderCancelled   EventKind = "order_cancelled"
	EventOrderFilled      EventKind = "order_filled"
	EventParameterChanged EventKind = "parameter_changed"
	EventReserveChanged   EventKind = "reserve_changed"
)

// Event describes a committed state change. Market carries the market's
// metadata after the change and Order the slot's content after the change
// (zero Seller once the slot is freed). Reserve events carry the asset and
// its new reserve balance.
type Event struct {
	Kind      EventKind
	Market    Market
	OrderID   uint64
	Order     Order
	Parameter string
	Value     string
	Asset     common.Address
	Reserve   *uint256.Int
	At        time.Time
}

// EventSink receives committed events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

// Observer is notified of every request outcome.
type Observer interface {
	ObserveRequest(op string, err error, elapsed time.Duration)
	SetOpenOrders(n uint64)
}

type nopSink struct{}

func (nopSink) Publish(Event) {}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, error, time.Duration) {}
func (nopObserver) SetOpenOrders(uint64)                         {}
