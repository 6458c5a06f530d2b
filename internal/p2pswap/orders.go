package p2pswap

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"

	"github.com/evvm-org/p2pswap/internal/evvm"
	"github.com/evvm-org/p2pswap/internal/message"
)

// MakeOrder opens an order for req.User, escrowing AmountA of TokenA with the
// engine. The market for (TokenA, TokenB) is created on first use. The order
// takes the lowest free slot of the market, or a new slot past MaxSlot when
// none is free.
func (e *Engine) MakeOrder(ctx context.Context, executor common.Address, req MakeOrderRequest) (res MakeOrderResult, err error) {
	start := time.Now()
	defer func() { e.observe(message.ActionMakeOrder, start, err) }()

	md := req.Metadata
	n := zeroIfNil(md.Nonce)
	amountA := zeroIfNil(md.AmountA)
	amountB := zeroIfNil(md.AmountB)
	priorityFee := zeroIfNil(req.Payment.PriorityFee)

	msg := message.MakeOrder(e.instanceID, n, md.TokenA, md.TokenB, amountA, amountB)
	if !message.VerifyMessage(msg, req.Signature, req.User) {
		return res, ErrInvalidSignature
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.nonces.Verify(req.User, n); err != nil {
		return res, err
	}

	reward, err := e.stakerReward(ctx, executor, makeOrderMultiple(priorityFee))
	if err != nil {
		return res, err
	}

	marketID := e.findMarketLocked(md.TokenA, md.TokenB)
	newMarket := marketID == 0
	var m Market
	if newMarket {
		m = Market{ID: e.marketCount + 1, TokenA: md.TokenA, TokenB: md.TokenB}
	} else {
		m = *e.markets[marketID]
	}
	orderID := e.freeSlotLocked(&m)

	// The engine keeps the priority fee of a make as service revenue.
	var reserve *uint256.Int
	if priorityFee.Sign() > 0 {
		if reserve, err = e.addReserveLocked(md.TokenA, priorityFee); err != nil {
			return res, err
		}
	}
	committed := e.committedPrincipalLocked(commitment{
		escrowAsset:  md.TokenA,
		escrowIn:     amountA,
		reserveAsset: md.TokenA,
		reserve:      reserve,
	})

	err = e.settle(ctx, func(tx evvm.Transfers) error {
		if err := tx.RequestTransfer(ctx, e.payment(req.User, md.TokenA, amountA, req.Payment)); err != nil {
			return err
		}
		return e.payReward(ctx, tx, executor, reward, committed)
	})
	if err != nil {
		return res, fmt.Errorf("settle make order: %w", err)
	}

	if newMarket {
		e.marketCount++
		e.marketIDs[pair{md.TokenA, md.TokenB}] = m.ID
		e.markets[m.ID] = &Market{ID: m.ID, TokenA: m.TokenA, TokenB: m.TokenB}
		e.orders[m.ID] = make(map[uint64]*Order)
	}
	stored := e.markets[m.ID]
	if orderID > stored.MaxSlot {
		stored.MaxSlot = orderID
	}
	stored.OrdersAvailable++
	order := &Order{Seller: req.User, AmountA: clone(amountA), AmountB: clone(amountB)}
	e.orders[m.ID][orderID] = order
	held, ok := e.escrow[md.TokenA]
	if !ok {
		held = new(uint256.Int)
		e.escrow[md.TokenA] = held
	}
	held.Add(held, amountA)
	if reserve != nil {
		e.reserves[md.TokenA] = reserve
	}
	e.openOrders++
	e.obs.SetOpenOrders(e.openOrders)
	e.consumeNonceLocked(req.User, n)

	if newMarket {
		e.publish(Event{Kind: EventMarketCreated, Market: *stored})
	}
	e.publish(Event{Kind: EventOrderOpened, Market: *stored, OrderID: orderID, Order: copyOrder(order)})
	if reserve != nil {
		e.publish(Event{Kind: EventReserveChanged, Market: *stored, Asset: md.TokenA, Reserve: clone(reserve)})
	}

	log.WithFields(log.Fields{
		"market":   m.ID,
		"order":    orderID,
		"seller":   req.User.Hex(),
		"executor": executor.Hex(),
	}).Info("p2pswap: order opened")

	return MakeOrderResult{MarketID: m.ID, OrderID: orderID}, nil
}

// CancelOrder closes req.User's order and refunds its escrowed AmountA. The
// payment authorization is only settled when it carries a priority fee.
func (e *Engine) CancelOrder(ctx context.Context, executor common.Address, req CancelOrderRequest) (err error) {
	start := time.Now()
	defer func() { e.observe(message.ActionCancelOrder, start, err) }()

	md := req.Metadata
	n := zeroIfNil(md.Nonce)
	priorityFee := zeroIfNil(req.Payment.PriorityFee)

	msg := message.CancelOrder(e.instanceID, n, md.TokenA, md.TokenB, md.OrderID)
	if !message.VerifyMessage(msg, req.Signature, req.User) {
		return ErrInvalidSignature
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.nonces.Verify(req.User, n); err != nil {
		return err
	}

	m, o, err := e.liveOrderLocked(e.findMarketLocked(md.TokenA, md.TokenB), md.OrderID)
	if err != nil {
		return err
	}
	if o.Seller != req.User {
		return ErrNotOrderOwner
	}

	reward, err := e.stakerReward(ctx, executor, cancelMultiple(priorityFee))
	if err != nil {
		return err
	}

	// A staker executor receives the priority fee on top of its reward.
	// Otherwise the engine keeps it as service revenue.
	forward := reward != nil && priorityFee.Sign() > 0
	var reserve *uint256.Int
	if !forward && priorityFee.Sign() > 0 {
		if reserve, err = e.addReserveLocked(e.principal, priorityFee); err != nil {
			return err
		}
	}
	committed := e.committedPrincipalLocked(commitment{
		escrowAsset:  md.TokenA,
		escrowOut:    o.AmountA,
		reserveAsset: e.principal,
		reserve:      reserve,
	})

	err = e.settle(ctx, func(tx evvm.Transfers) error {
		if priorityFee.Sign() > 0 {
			if err := tx.RequestTransfer(ctx, e.payment(req.User, e.principal, new(uint256.Int), req.Payment)); err != nil {
				return err
			}
		}
		if err := tx.CreditTransfer(ctx, req.User, md.TokenA, o.AmountA); err != nil {
			return err
		}
		if forward {
			if err := tx.CreditTransfer(ctx, executor, e.principal, priorityFee); err != nil {
				return err
			}
		}
		return e.payReward(ctx, tx, executor, reward, committed)
	})
	if err != nil {
		return fmt.Errorf("settle cancel order: %w", err)
	}

	e.clearOrderLocked(m, md.OrderID)
	if reserve != nil {
		e.reserves[e.principal] = reserve
	}
	e.consumeNonceLocked(req.User, n)
	e.publish(Event{Kind: EventOrderCancelled, Market: *m, OrderID: md.OrderID, Order: copyOrder(e.orders[m.ID][md.OrderID])})
	if reserve != nil {
		e.publish(Event{Kind: EventReserveChanged, Market: *m, Asset: e.principal, Reserve: clone(reserve)})
	}

	log.WithFields(log.Fields{
		"market":   m.ID,
		"order":    md.OrderID,
		"seller":   req.User.Hex(),
		"executor": executor.Hex(),
	}).Info("p2pswap: order cancelled")
	return nil
}

// freeSlotLocked picks the slot for a new order in m: the lowest empty slot
// in [1, MaxSlot] when the market has one, MaxSlot+1 otherwise.
func (e *Engine) freeSlotLocked(m *Market) uint64 {
	if m.MaxSlot == m.OrdersAvailable {
		return m.MaxSlot + 1
	}
	slots := e.orders[m.ID]
	for i := uint64(1); i <= m.MaxSlot; i++ {
		if slots[i].Empty() {
			return i
		}
	}
	return m.MaxSlot + 1
}

// payment builds the ledger transfer for a user's payment authorization.
// The engine is both the recipient and the authorized executor.
func (e *Engine) payment(from, asset common.Address, amount *uint256.Int, auth PaymentAuth) evvm.Payment {
	return evvm.Payment{
		From:         from,
		To:           e.address,
		Asset:        asset,
		Amount:       amount,
		PriorityFee:  zeroIfNil(auth.PriorityFee),
		Nonce:        zeroIfNil(auth.Nonce),
		PriorityFlag: auth.PriorityFlag,
		Executor:     e.address,
		Signature:    auth.Signature,
	}
}

// payReward credits executor with up to reward principal tokens. Only the
// engine's staged principal balance above committed is spendable, so a
// reward never draws on order escrow or the service reserve. A short pool
// pays what it holds.
func (e *Engine) payReward(ctx context.Context, tx evvm.Transfers, executor common.Address, reward, committed *uint256.Int) error {
	if reward == nil || reward.IsZero() {
		return nil
	}
	balance, err := tx.Balance(ctx, e.principal)
	if err != nil {
		return err
	}
	pool := new(uint256.Int)
	if balance.Gt(committed) {
		pool.Sub(balance, committed)
	}
	if pool.Lt(reward) {
		log.WithFields(log.Fields{
			"executor": executor.Hex(),
			"owed":     reward.Dec(),
			"paid":     pool.Dec(),
		}).Warn("p2pswap: reward pool short")
		reward = pool
	}
	if reward.IsZero() {
		return nil
	}
	return tx.CreditTransfer(ctx, executor, e.principal, reward)
}

// consumeNonceLocked marks n used for user once the request has committed.
func (e *Engine) consumeNonceLocked(user common.Address, n *uint256.Int) {
	if err := e.nonces.MarkUsed(user, n); err != nil {
		// Verified under the same lock at the start of the request.
		log.WithError(err).Error("p2pswap: nonce consumed twice")
	}
}

func copyOrder(o *Order) Order {
	if o == nil {
		return Order{AmountA: new(uint256.Int), AmountB: new(uint256.Int)}
	}
	return Order{Seller: o.Seller, AmountA: clone(o.AmountA), AmountB: clone(o.AmountB)}
}
