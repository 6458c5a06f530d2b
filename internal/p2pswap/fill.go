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

const (
	opFillProportional = "dispatchOrder_fillProportionalFee"
	opFillFixed        = "dispatchOrder_fillFixedFee"
)

// feeQuote is what a fill policy requires for one order.
type feeQuote struct {
	minimum *uint256.Int // lowest acceptable fill amount
	full    *uint256.Int // amountB + fee; anything above is refunded
	final   func(fill *uint256.Int) *uint256.Int
}

// feePolicy quotes the fee for an order asking amountB. Called with e.mu held.
type feePolicy func(amountB *uint256.Int) (feeQuote, error)

// DispatchOrderFillProportionalFee fills an order charging
// amountB*percentageFee/10000 on top of amountB.
func (e *Engine) DispatchOrderFillProportionalFee(ctx context.Context, executor common.Address, req DispatchOrderRequest) (FillResult, error) {
	return e.dispatch(ctx, opFillProportional, executor, req, e.proportionalQuote)
}

// DispatchOrderFillFixedFee fills an order charging the proportional fee
// capped at maxLimitFillFixedFee, with a discount band near the cap.
func (e *Engine) DispatchOrderFillFixedFee(ctx context.Context, executor common.Address, req DispatchOrderRequest) (FillResult, error) {
	return e.dispatch(ctx, opFillFixed, executor, req, e.fixedQuote)
}

func (e *Engine) proportionalQuote(amountB *uint256.Int) (feeQuote, error) {
	fee, err := ProportionalFee(amountB, e.percentageFee.Current())
	if err != nil {
		return feeQuote{}, err
	}
	full, err := addChecked(amountB, fee)
	if err != nil {
		return feeQuote{}, err
	}
	return feeQuote{
		minimum: full,
		full:    full,
		final:   func(*uint256.Int) *uint256.Int { return clone(fee) },
	}, nil
}

func (e *Engine) fixedQuote(amountB *uint256.Int) (feeQuote, error) {
	maxFee := e.maxLimitFillFixedFee.Current()
	fee, fee10, err := FixedFee(amountB, e.percentageFee.Current(), &maxFee)
	if err != nil {
		return feeQuote{}, err
	}
	full, err := addChecked(amountB, fee)
	if err != nil {
		return feeQuote{}, err
	}
	return feeQuote{
		minimum: new(uint256.Int).Sub(full, fee10),
		full:    full,
		final: func(fill *uint256.Int) *uint256.Int {
			return FinalFixedFee(fill, amountB, fee, fee10)
		},
	}, nil
}

func (e *Engine) dispatch(ctx context.Context, op string, executor common.Address, req DispatchOrderRequest, policy feePolicy) (res FillResult, err error) {
	start := time.Now()
	defer func() { e.observe(op, start, err) }()

	md := req.Metadata
	n := zeroIfNil(md.Nonce)
	fill := zeroIfNil(md.AmountOfTokenBToFill)
	priorityFee := zeroIfNil(req.Payment.PriorityFee)

	msg := message.DispatchOrder(e.instanceID, n, md.TokenA, md.TokenB, md.OrderID)
	if !message.VerifyMessage(msg, req.Signature, req.User) {
		return res, ErrInvalidSignature
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.nonces.Verify(req.User, n); err != nil {
		return res, err
	}

	m, o, err := e.liveOrderLocked(e.findMarketLocked(md.TokenA, md.TokenB), md.OrderID)
	if err != nil {
		return res, err
	}

	quote, err := policy(o.AmountB)
	if err != nil {
		return res, err
	}
	if fill.Lt(quote.minimum) {
		return res, fmt.Errorf("%w: got %s, need at least %s", ErrInsufficientFill, fill.Dec(), quote.minimum.Dec())
	}
	fee := quote.final(fill)

	refund := new(uint256.Int)
	surplus := fill.Gt(quote.full)
	if surplus {
		refund.Sub(fill, quote.full)
	}

	split := e.rewardPercentage.Current()
	sellerShare, err := shareOf(fee, split.Seller)
	if err != nil {
		return res, err
	}
	serviceShare, err := shareOf(fee, split.Service)
	if err != nil {
		return res, err
	}
	stakerShare, err := shareOf(fee, split.Staker)
	if err != nil {
		return res, err
	}
	sellerAmount, err := addChecked(o.AmountB, sellerShare)
	if err != nil {
		return res, err
	}
	executorAmount, err := addChecked(priorityFee, stakerShare)
	if err != nil {
		return res, err
	}
	reserve, err := e.addReserveLocked(md.TokenB, serviceShare)
	if err != nil {
		return res, err
	}

	reward, err := e.stakerReward(ctx, executor, fillMultiple(surplus))
	if err != nil {
		return res, err
	}
	committed := e.committedPrincipalLocked(commitment{
		escrowAsset:  md.TokenA,
		escrowOut:    o.AmountA,
		reserveAsset: md.TokenB,
		reserve:      reserve,
	})

	err = e.settle(ctx, func(tx evvm.Transfers) error {
		if err := tx.RequestTransfer(ctx, e.payment(req.User, md.TokenB, fill, req.Payment)); err != nil {
			return err
		}
		if surplus {
			if err := tx.CreditTransfer(ctx, req.User, md.TokenB, refund); err != nil {
				return err
			}
		}
		payouts := []evvm.Payout{
			{To: o.Seller, Amount: sellerAmount},
			{To: executor, Amount: executorAmount},
		}
		if err := tx.DisperseCredit(ctx, md.TokenB, payouts); err != nil {
			return err
		}
		if err := tx.CreditTransfer(ctx, req.User, md.TokenA, o.AmountA); err != nil {
			return err
		}
		return e.payReward(ctx, tx, executor, reward, committed)
	})
	if err != nil {
		return res, fmt.Errorf("settle fill: %w", err)
	}

	seller := o.Seller
	e.reserves[md.TokenB] = reserve
	e.clearOrderLocked(m, md.OrderID)
	e.consumeNonceLocked(req.User, n)

	e.publish(Event{Kind: EventOrderFilled, Market: *m, OrderID: md.OrderID, Order: copyOrder(e.orders[m.ID][md.OrderID])})
	if !serviceShare.IsZero() {
		e.publish(Event{Kind: EventReserveChanged, Market: *m, Asset: md.TokenB, Reserve: clone(reserve)})
	}

	log.WithFields(log.Fields{
		"op":       op,
		"market":   m.ID,
		"order":    md.OrderID,
		"seller":   seller.Hex(),
		"filler":   req.User.Hex(),
		"executor": executor.Hex(),
		"fee":      fee.Dec(),
	}).Info("p2pswap: order filled")

	return FillResult{MarketID: m.ID, OrderID: md.OrderID, Fee: fee, Refund: refund}, nil
}
