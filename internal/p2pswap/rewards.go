package p2pswap

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Staker reward multiples of the base reward unit, per action.
const (
	rewardMakeOrder         = 2
	rewardMakeOrderPriority = 3
	rewardCancel            = 2
	rewardCancelPriority    = 3
	rewardFill              = 4
	rewardFillSurplus       = 5
)

// stakerReward returns the principal-token amount owed to executor for an
// action rewarded at multiple units, or nil when executor is not a
// recognized staker.
func (e *Engine) stakerReward(ctx context.Context, executor common.Address, multiple uint64) (*uint256.Int, error) {
	staker, err := e.staking.IsStaker(ctx, executor)
	if err != nil {
		return nil, fmt.Errorf("staking: is staker: %w", err)
	}
	if !staker {
		return nil, nil
	}
	unit, err := e.staking.BaseRewardUnit(ctx)
	if err != nil {
		return nil, fmt.Errorf("staking: base reward: %w", err)
	}
	return mulDiv(unit, multiple, 1)
}

func makeOrderMultiple(priorityFee *uint256.Int) uint64 {
	if priorityFee.Sign() > 0 {
		return rewardMakeOrderPriority
	}
	return rewardMakeOrder
}

func cancelMultiple(priorityFee *uint256.Int) uint64 {
	if priorityFee.Sign() > 0 {
		return rewardCancelPriority
	}
	return rewardCancel
}

func fillMultiple(surplus bool) uint64 {
	if surplus {
		return rewardFillSurplus
	}
	return rewardFill
}
