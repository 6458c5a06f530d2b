package p2pswap

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"

	"github.com/evvm-org/p2pswap/internal/evvm"
	"github.com/evvm-org/p2pswap/internal/timelock"
)

// Governed parameter names used in events and metrics.
const (
	ParamOwner                = "owner"
	ParamRewardPercentage     = "rewardPercentage"
	ParamPercentageFee        = "percentageFee"
	ParamMaxLimitFillFixedFee = "maxLimitFillFixedFee"
	ParamWithdrawal           = "withdrawal"
)

// govern runs fn under the engine lock and records its outcome as op.
func (e *Engine) govern(op string, fn func() error) (err error) {
	start := time.Now()
	defer func() { e.observe(op, start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}

func (e *Engine) onlyOwnerLocked(caller common.Address) error {
	if caller != e.owner.Current() {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller.Hex())
	}
	return nil
}

func (e *Engine) parameterChanged(name, value string, now time.Time) {
	e.publish(Event{Kind: EventParameterChanged, Parameter: name, Value: value, At: now})
	log.WithFields(log.Fields{"parameter": name, "value": value}).Info("p2pswap: parameter changed")
}

// ProposeOwner nominates newOwner. Only the current owner may propose.
func (e *Engine) ProposeOwner(caller, newOwner common.Address, now time.Time) error {
	return e.govern("proposeOwner", func() error {
		if err := e.onlyOwnerLocked(caller); err != nil {
			return err
		}
		e.owner.Propose(newOwner, now)
		return nil
	})
}

// RejectProposeOwner discards the nomination. Either the current owner or
// the nominee may reject.
func (e *Engine) RejectProposeOwner(caller common.Address, now time.Time) error {
	return e.govern("rejectProposeOwner", func() error {
		proposed, _, ok := e.owner.Proposed()
		if !ok {
			return timelock.ErrNoProposal
		}
		if caller != e.owner.Current() && caller != proposed {
			return fmt.Errorf("%w: %s may not reject the owner proposal", ErrUnauthorized, caller.Hex())
		}
		return e.owner.Reject(now)
	})
}

// AcceptOwner hands ownership to the nominee. Only the nominee may accept.
func (e *Engine) AcceptOwner(caller common.Address, now time.Time) error {
	return e.govern("acceptOwner", func() error {
		proposed, _, ok := e.owner.Proposed()
		if !ok {
			return timelock.ErrNoProposal
		}
		if caller != proposed {
			return fmt.Errorf("%w: only the proposed owner may accept", ErrUnauthorized)
		}
		owner, err := e.owner.Accept(now)
		if err != nil {
			return err
		}
		e.parameterChanged(ParamOwner, owner.Hex(), now)
		return nil
	})
}

// ProposeFillFixedPercentage proposes a new fee split. The split is shared
// by both fill policies.
func (e *Engine) ProposeFillFixedPercentage(caller common.Address, split Percentage, now time.Time) error {
	return e.proposePercentage("proposeFillFixedPercentage", caller, split, now)
}

// RejectProposeFillFixedPercentage discards the pending fee split.
func (e *Engine) RejectProposeFillFixedPercentage(caller common.Address, now time.Time) error {
	return e.rejectPercentage("rejectProposeFillFixedPercentage", caller, now)
}

// AcceptFillFixedPercentage commits the pending fee split.
func (e *Engine) AcceptFillFixedPercentage(caller common.Address, now time.Time) error {
	return e.acceptPercentage("acceptFillFixedPercentage", caller, now)
}

// ProposeFillProportionalPercentage proposes a new fee split. The split is
// shared by both fill policies.
func (e *Engine) ProposeFillProportionalPercentage(caller common.Address, split Percentage, now time.Time) error {
	return e.proposePercentage("proposeFillProportionalPercentage", caller, split, now)
}

// RejectProposeFillProportionalPercentage discards the pending fee split.
func (e *Engine) RejectProposeFillProportionalPercentage(caller common.Address, now time.Time) error {
	return e.rejectPercentage("rejectProposeFillProportionalPercentage", caller, now)
}

// AcceptFillProportionalPercentage commits the pending fee split.
func (e *Engine) AcceptFillProportionalPercentage(caller common.Address, now time.Time) error {
	return e.acceptPercentage("acceptFillProportionalPercentage", caller, now)
}

func (e *Engine) proposePercentage(op string, caller common.Address, split Percentage, now time.Time) error {
	return e.govern(op, func() error {
		if err := e.onlyOwnerLocked(caller); err != nil {
			return err
		}
		if !split.Valid() {
			return fmt.Errorf("%w: %d+%d+%d", ErrInvalidPercentage, split.Seller, split.Service, split.Staker)
		}
		e.rewardPercentage.Propose(split, now)
		return nil
	})
}

func (e *Engine) rejectPercentage(op string, caller common.Address, now time.Time) error {
	return e.govern(op, func() error {
		if err := e.onlyOwnerLocked(caller); err != nil {
			return err
		}
		return e.rewardPercentage.Reject(now)
	})
}

func (e *Engine) acceptPercentage(op string, caller common.Address, now time.Time) error {
	return e.govern(op, func() error {
		if err := e.onlyOwnerLocked(caller); err != nil {
			return err
		}
		split, err := e.rewardPercentage.Accept(now)
		if err != nil {
			return err
		}
		e.parameterChanged(ParamRewardPercentage,
			fmt.Sprintf("%d/%d/%d", split.Seller, split.Service, split.Staker), now)
		return nil
	})
}

// ProposePercentageFee proposes a new proportional fee in basis points.
func (e *Engine) ProposePercentageFee(caller common.Address, feeBps uint64, now time.Time) error {
	return e.govern("proposePercentageFee", func() error {
		if err := e.onlyOwnerLocked(caller); err != nil {
			return err
		}
		if feeBps > BasisPoints {
			return fmt.Errorf("%w: fee %d exceeds %d", ErrInvalidPercentage, feeBps, BasisPoints)
		}
		e.percentageFee.Propose(feeBps, now)
		return nil
	})
}

// RejectProposePercentageFee discards the pending fee.
func (e *Engine) RejectProposePercentageFee(caller common.Address, now time.Time) error {
	return e.govern("rejectProposePercentageFee", func() error {
		if err := e.onlyOwnerLocked(caller); err != nil {
			return err
		}
		return e.percentageFee.Reject(now)
	})
}

// AcceptPercentageFee commits the pending fee.
func (e *Engine) AcceptPercentageFee(caller common.Address, now time.Time) error {
	return e.govern("acceptPercentageFee", func() error {
		if err := e.onlyOwnerLocked(caller); err != nil {
			return err
		}
		fee, err := e.percentageFee.Accept(now)
		if err != nil {
			return err
		}
		e.parameterChanged(ParamPercentageFee, strconv.FormatUint(fee, 10), now)
		return nil
	})
}

// ProposeMaxLimitFillFixedFee proposes a new cap for fixed-fee fills.
func (e *Engine) ProposeMaxLimitFillFixedFee(caller common.Address, maxFee *uint256.Int, now time.Time) error {
	return e.govern("proposeMaxLimitFillFixedFee", func() error {
		if err := e.onlyOwnerLocked(caller); err != nil {
			return err
		}
		e.maxLimitFillFixedFee.Propose(*clone(maxFee), now)
		return nil
	})
}

// RejectProposeMaxLimitFillFixedFee discards the pending cap.
func (e *Engine) RejectProposeMaxLimitFillFixedFee(caller common.Address, now time.Time) error {
	return e.govern("rejectProposeMaxLimitFillFixedFee", func() error {
		if err := e.onlyOwnerLocked(caller); err != nil {
			return err
		}
		return e.maxLimitFillFixedFee.Reject(now)
	})
}

// AcceptMaxLimitFillFixedFee commits the pending cap.
func (e *Engine) AcceptMaxLimitFillFixedFee(caller common.Address, now time.Time) error {
	return e.govern("acceptMaxLimitFillFixedFee", func() error {
		if err := e.onlyOwnerLocked(caller); err != nil {
			return err
		}
		maxFee, err := e.maxLimitFillFixedFee.Accept(now)
		if err != nil {
			return err
		}
		e.parameterChanged(ParamMaxLimitFillFixedFee, maxFee.Dec(), now)
		return nil
	})
}

// ProposeWithdrawal proposes paying amount of asset from the service reserve
// to recipient. The amount must be covered by the reserve when proposed.
func (e *Engine) ProposeWithdrawal(caller, asset common.Address, amount *uint256.Int, recipient common.Address, now time.Time) error {
	return e.govern("proposeWithdrawal", func() error {
		if err := e.onlyOwnerLocked(caller); err != nil {
			return err
		}
		if err := e.coveredByReserveLocked(asset, amount); err != nil {
			return err
		}
		e.withdrawal.Propose(Withdrawal{Asset: asset, Amount: *clone(amount), Recipient: recipient}, now)
		return nil
	})
}

// RejectProposeWithdrawal discards the pending withdrawal.
func (e *Engine) RejectProposeWithdrawal(caller common.Address, now time.Time) error {
	return e.govern("rejectProposeWithdrawal", func() error {
		if err := e.onlyOwnerLocked(caller); err != nil {
			return err
		}
		return e.withdrawal.Reject(now)
	})
}

// AcceptWithdrawal pays the pending withdrawal out of the service reserve.
func (e *Engine) AcceptWithdrawal(ctx context.Context, caller common.Address, now time.Time) error {
	return e.govern("acceptWithdrawal", func() error {
		if err := e.onlyOwnerLocked(caller); err != nil {
			return err
		}
		w, err := e.withdrawal.Pending(now)
		if err != nil {
			return err
		}
		if err := e.coveredByReserveLocked(w.Asset, &w.Amount); err != nil {
			return err
		}

		err = e.settle(ctx, func(tx evvm.Transfers) error {
			return tx.CreditTransfer(ctx, w.Recipient, w.Asset, &w.Amount)
		})
		if err != nil {
			return fmt.Errorf("settle withdrawal: %w", err)
		}

		if _, err := e.withdrawal.Accept(now); err != nil {
			return err
		}
		reserve, ok := e.reserves[w.Asset]
		if !ok {
			reserve = new(uint256.Int)
			e.reserves[w.Asset] = reserve
		}
		reserve.Sub(reserve, &w.Amount)

		e.publish(Event{Kind: EventReserveChanged, Asset: w.Asset, Reserve: clone(reserve), At: now})
		e.parameterChanged(ParamWithdrawal,
			fmt.Sprintf("%s %s -> %s", w.Amount.Dec(), w.Asset.Hex(), w.Recipient.Hex()), now)
		return nil
	})
}

func (e *Engine) coveredByReserveLocked(asset common.Address, amount *uint256.Int) error {
	reserve, ok := e.reserves[asset]
	if !ok {
		reserve = new(uint256.Int)
	}
	if zeroIfNil(amount).Gt(reserve) {
		return fmt.Errorf("%w: %s > %s", ErrInsufficientReserve, zeroIfNil(amount).Dec(), reserve.Dec())
	}
	return nil
}
