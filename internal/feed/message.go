// Package feed distributes committed engine events: an in-process hub, a
// Redis mirror of the book, a WebSocket stream server and a reconnecting
// stream client.
package feed

import (
	"github.com/evvm-org/p2pswap/internal/message"
	"github.com/evvm-org/p2pswap/internal/p2pswap"
)

// KindHeartbeat marks keep-alive messages sent by the stream server.
const KindHeartbeat = "heartbeat"

// Message is the JSON form of an engine event on the stream.
type Message struct {
	Kind            string `json:"kind"`
	MarketID        uint64 `json:"marketId,omitempty"`
	TokenA          string `json:"tokenA,omitempty"`
	TokenB          string `json:"tokenB,omitempty"`
	MaxSlot         uint64 `json:"maxSlot,omitempty"`
	OrdersAvailable uint64 `json:"ordersAvailable"`
	OrderID         uint64 `json:"orderId,omitempty"`
	Seller          string `json:"seller,omitempty"`
	AmountA         string `json:"amountA,omitempty"`
	AmountB         string `json:"amountB,omitempty"`
	Parameter       string `json:"parameter,omitempty"`
	Value           string `json:"value,omitempty"`
	Asset           string `json:"asset,omitempty"`
	Reserve         string `json:"reserve,omitempty"`
	At              int64  `json:"at"` // unix milliseconds
}

// Encode converts an engine event to its stream form.
func Encode(ev p2pswap.Event) Message {
	m := Message{
		Kind:            string(ev.Kind),
		MarketID:        ev.Market.ID,
		MaxSlot:         ev.Market.MaxSlot,
		OrdersAvailable: ev.Market.OrdersAvailable,
		OrderID:         ev.OrderID,
		Parameter:       ev.Parameter,
		Value:           ev.Value,
		At:              ev.At.UnixMilli(),
	}
	if ev.Market.ID != 0 {
		m.TokenA = message.Address(ev.Market.TokenA)
		m.TokenB = message.Address(ev.Market.TokenB)
	}
	if !ev.Order.Empty() {
		m.Seller = message.Address(ev.Order.Seller)
		m.AmountA = message.Uint(ev.Order.AmountA)
		m.AmountB = message.Uint(ev.Order.AmountB)
	}
	if ev.Reserve != nil {
		m.Asset = message.Address(ev.Asset)
		m.Reserve = ev.Reserve.Dec()
	}
	return m
}
