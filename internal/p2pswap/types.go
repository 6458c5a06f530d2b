package p2pswap

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BasisPoints is the denominator of every percentage in the engine.
const BasisPoints = 10_000

// Market is the order book for one ordered (TokenA, TokenB) pair. Sellers in
// a market escrow TokenA and ask for TokenB.
type Market struct {
	ID              uint64
	TokenA          common.Address
	TokenB          common.Address
	MaxSlot         uint64 // highest slot index ever used
	OrdersAvailable uint64 // live orders
}

// Order occupies one slot of a market. A zero Seller marks a free slot.
type Order struct {
	Seller  common.Address
	AmountA *uint256.Int // escrowed by the seller
	AmountB *uint256.Int // asked by the seller
}

// Empty reports whether the slot holding o is free.
func (o *Order) Empty() bool {
	return o == nil || o.Seller == (common.Address{})
}

// OrderView is an open order together with its location.
type OrderView struct {
	MarketID uint64
	OrderID  uint64
	Seller   common.Address
	AmountA  *uint256.Int
	AmountB  *uint256.Int
}

// Percentage splits a fill fee between the seller, the service reserve and
// the executing staker. Shares are basis points and must total BasisPoints.
type Percentage struct {
	Seller  uint64
	Service uint64
	Staker  uint64
}

// Valid reports whether the shares sum to exactly BasisPoints.
func (p Percentage) Valid() bool {
	if p.Seller > BasisPoints || p.Service > BasisPoints || p.Staker > BasisPoints {
		return false
	}
	return p.Seller+p.Service+p.Staker == BasisPoints
}

// Withdrawal is a pending payout from the service's fee reserve.
type Withdrawal struct {
	Asset     common.Address
	Amount    uint256.Int
	Recipient common.Address
}

// PaymentAuth is the user's signed authorization for the accounting ledger
// to move funds on their behalf. It travels next to, and independently of,
// the order-book action signature.
type PaymentAuth struct {
	PriorityFee  *uint256.Int
	Nonce        *uint256.Int
	PriorityFlag bool
	Signature    []byte
}

// MakeOrderMetadata is the signed content of a makeOrder request.
type MakeOrderMetadata struct {
	Nonce   *uint256.Int
	TokenA  common.Address
	TokenB  common.Address
	AmountA *uint256.Int
	AmountB *uint256.Int
}

// MakeOrderRequest asks the engine to open an order for User.
type MakeOrderRequest struct {
	User      common.Address
	Metadata  MakeOrderMetadata
	Signature []byte
	Payment   PaymentAuth
}

// MakeOrderResult locates the order MakeOrder opened.
type MakeOrderResult struct {
	MarketID uint64
	OrderID  uint64
}

// CancelOrderMetadata is the signed content of a cancelOrder request.
type CancelOrderMetadata struct {
	Nonce   *uint256.Int
	TokenA  common.Address
	TokenB  common.Address
	OrderID uint64
}

// CancelOrderRequest asks the engine to close User's order and refund it.
type CancelOrderRequest struct {
	User      common.Address
	Metadata  CancelOrderMetadata
	Signature []byte
	Payment   PaymentAuth
}

// DispatchOrderMetadata identifies the order to fill. AmountOfTokenBToFill
// is not part of the signed dispatch message; it is bound by the payment
// authorization instead.
type DispatchOrderMetadata struct {
	Nonce                *uint256.Int
	TokenA               common.Address
	TokenB               common.Address
	OrderID              uint64
	AmountOfTokenBToFill *uint256.Int
}

// DispatchOrderRequest asks the engine to fill an order for User.
type DispatchOrderRequest struct {
	User      common.Address
	Metadata  DispatchOrderMetadata
	Signature []byte
	Payment   PaymentAuth
}

// FillResult summarizes a completed fill.
type FillResult struct {
	MarketID uint64
	OrderID  uint64
	Fee      *uint256.Int // fee actually distributed
	Refund   *uint256.Int // surplus returned to the filler
}

type pair struct {
	A, B common.Address
}

func zeroIfNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

func clone(v *uint256.Int) *uint256.Int {
	return new(uint256.Int).Set(zeroIfNil(v))
}
