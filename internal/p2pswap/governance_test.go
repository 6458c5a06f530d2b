package p2pswap

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/evvm-org/p2pswap/internal/timelock"
)

var (
	nominee  = common.HexToAddress("0x000000000000000000000000000000000000A11C")
	stranger = common.HexToAddress("0x000000000000000000000000000000000000BAD0")
)

func TestGovernanceRequiresOwner(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	require.ErrorIs(t, e.ProposePercentageFee(stranger, 100, t0), ErrUnauthorized)
	require.ErrorIs(t, e.ProposeMaxLimitFillFixedFee(stranger, uint256.NewInt(5), t0), ErrUnauthorized)
	require.ErrorIs(t, e.ProposeFillFixedPercentage(stranger, Percentage{10_000, 0, 0}, t0), ErrUnauthorized)
	require.ErrorIs(t, e.ProposeOwner(stranger, stranger, t0), ErrUnauthorized)
	require.ErrorIs(t, e.ProposeWithdrawal(stranger, tokenY, uint256.NewInt(0), stranger, t0), ErrUnauthorized)

	require.NoError(t, e.ProposePercentageFee(ownerAddr, 100, t0))
	require.ErrorIs(t, e.AcceptPercentageFee(stranger, t0), ErrUnauthorized)
	require.ErrorIs(t, e.RejectProposePercentageFee(stranger, t0), ErrUnauthorized)
	require.Equal(t, uint64(500), e.GetPercentageFee())
}

func TestPercentageFeeTimelock(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	require.ErrorIs(t, e.AcceptPercentageFee(ownerAddr, t0), timelock.ErrNoProposal)

	require.NoError(t, e.ProposePercentageFee(ownerAddr, 250, t0))
	v, deadline, ok := e.GetPercentageFeeProposal()
	require.True(t, ok)
	require.Equal(t, uint64(250), v)
	require.Equal(t, t0.Add(timelock.Delay), deadline)
	require.Equal(t, uint64(500), e.GetPercentageFee())

	require.NoError(t, e.AcceptPercentageFee(ownerAddr, deadline.Add(-time.Second)))
	require.Equal(t, uint64(250), e.GetPercentageFee())
	_, _, ok = e.GetPercentageFeeProposal()
	require.False(t, ok)

	require.Equal(t, []EventKind{EventParameterChanged}, h.sink.kinds())
}

func TestTimelockWindowClosed(t *testing.T) {
	h := newHarness(t)
	e := h.engine
	late := t0.Add(timelock.Delay + time.Second)

	require.NoError(t, e.ProposePercentageFee(ownerAddr, 250, t0))
	require.ErrorIs(t, e.AcceptPercentageFee(ownerAddr, late), timelock.ErrWindowClosed)
	require.ErrorIs(t, e.RejectProposePercentageFee(ownerAddr, late), timelock.ErrWindowClosed)
	require.Equal(t, uint64(500), e.GetPercentageFee())

	// A fresh proposal reopens the window.
	require.NoError(t, e.ProposePercentageFee(ownerAddr, 300, late))
	require.NoError(t, e.AcceptPercentageFee(ownerAddr, late.Add(timelock.Delay)))
	require.Equal(t, uint64(300), e.GetPercentageFee())
}

func TestPercentageFeeBounds(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.engine.ProposePercentageFee(ownerAddr, 10_001, t0), ErrInvalidPercentage)
	require.NoError(t, h.engine.ProposePercentageFee(ownerAddr, 10_000, t0))
}

func TestRewardPercentageSharedBetweenPolicies(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	err := e.ProposeFillProportionalPercentage(ownerAddr, Percentage{6000, 3000, 999}, t0)
	require.ErrorIs(t, err, ErrInvalidPercentage)
	_, _, ok := e.GetRewardPercentageProposal()
	require.False(t, ok)

	split := Percentage{Seller: 6000, Service: 3000, Staker: 1000}
	require.NoError(t, e.ProposeFillFixedPercentage(ownerAddr, split, t0))
	require.NoError(t, e.AcceptFillProportionalPercentage(ownerAddr, t0.Add(time.Hour)))
	require.Equal(t, split, e.GetRewardPercentage())

	require.NoError(t, e.ProposeFillProportionalPercentage(ownerAddr, Percentage{10_000, 0, 0}, t0))
	require.NoError(t, e.RejectProposeFillFixedPercentage(ownerAddr, t0))
	require.ErrorIs(t, e.AcceptFillFixedPercentage(ownerAddr, t0), timelock.ErrNoProposal)
	require.Equal(t, split, e.GetRewardPercentage())
}

func TestNewSplitAppliesToFills(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser(map[common.Address]uint64{tokenX: 5000})
	bob := h.newUser(map[common.Address]uint64{tokenY: 5000})
	h.makeOrder(alice, 1, 1000, 2000)

	require.NoError(t, h.engine.ProposeFillFixedPercentage(ownerAddr, Percentage{0, 10_000, 0}, t0))
	require.NoError(t, h.engine.AcceptFillFixedPercentage(ownerAddr, t0))

	_, err := h.engine.DispatchOrderFillProportionalFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 1, 2100, 1, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(2000), h.balance(alice.addr, tokenY))
	require.Equal(t, uint64(100), h.engine.GetBalanceOfContract(tokenY).Uint64())
	require.Zero(t, h.balance(relayer, tokenY))
}

func TestMaxLimitFillFixedFee(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	require.NoError(t, e.ProposeMaxLimitFillFixedFee(ownerAddr, uint256.NewInt(70), t0))
	v, _, ok := e.GetMaxLimitFillFixedFeeProposal()
	require.True(t, ok)
	require.Equal(t, uint64(70), v.Uint64())

	require.NoError(t, e.RejectProposeMaxLimitFillFixedFee(ownerAddr, t0))
	require.Equal(t, uint64(100), e.GetMaxLimitFillFixedFee().Uint64())

	require.NoError(t, e.ProposeMaxLimitFillFixedFee(ownerAddr, uint256.NewInt(70), t0))
	require.NoError(t, e.AcceptMaxLimitFillFixedFee(ownerAddr, t0.Add(timelock.Delay)))
	require.Equal(t, uint64(70), e.GetMaxLimitFillFixedFee().Uint64())
}

func TestOwnerHandover(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	require.ErrorIs(t, e.AcceptOwner(nominee, t0), timelock.ErrNoProposal)
	require.NoError(t, e.ProposeOwner(ownerAddr, nominee, t0))

	require.ErrorIs(t, e.AcceptOwner(ownerAddr, t0), ErrUnauthorized)
	require.ErrorIs(t, e.AcceptOwner(stranger, t0), ErrUnauthorized)
	require.ErrorIs(t, e.RejectProposeOwner(stranger, t0), ErrUnauthorized)

	proposed, _, ok := e.GetOwnerProposal()
	require.True(t, ok)
	require.Equal(t, nominee, proposed)

	require.NoError(t, e.AcceptOwner(nominee, t0.Add(time.Minute)))
	require.Equal(t, nominee, e.GetOwner())

	require.ErrorIs(t, e.ProposePercentageFee(ownerAddr, 100, t0), ErrUnauthorized)
	require.NoError(t, e.ProposePercentageFee(nominee, 100, t0))
}

func TestOwnerProposalRejectedByNominee(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	require.NoError(t, e.ProposeOwner(ownerAddr, nominee, t0))
	require.NoError(t, e.RejectProposeOwner(nominee, t0))
	require.ErrorIs(t, e.AcceptOwner(nominee, t0), timelock.ErrNoProposal)
	require.Equal(t, ownerAddr, e.GetOwner())

	require.NoError(t, e.ProposeOwner(ownerAddr, nominee, t0))
	require.NoError(t, e.RejectProposeOwner(ownerAddr, t0))
	require.Equal(t, ownerAddr, e.GetOwner())
}

func TestWithdrawal(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser(map[common.Address]uint64{tokenX: 5000})
	bob := h.newUser(map[common.Address]uint64{tokenY: 5000})
	treasury := common.HexToAddress("0x000000000000000000000000000000000000FEE5")
	h.makeOrder(alice, 1, 1000, 2000)
	_, err := h.engine.DispatchOrderFillProportionalFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 1, 2100, 1, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(40), h.engine.GetBalanceOfContract(tokenY).Uint64())

	err = h.engine.ProposeWithdrawal(ownerAddr, tokenY, uint256.NewInt(41), treasury, t0)
	require.ErrorIs(t, err, ErrInsufficientReserve)
	require.ErrorIs(t, h.engine.AcceptWithdrawal(h.ctx, ownerAddr, t0), timelock.ErrNoProposal)

	require.NoError(t, h.engine.ProposeWithdrawal(ownerAddr, tokenY, uint256.NewInt(30), treasury, t0))
	w, _, ok := h.engine.GetWithdrawalProposal()
	require.True(t, ok)
	require.Equal(t, treasury, w.Recipient)
	require.Equal(t, uint64(30), w.Amount.Uint64())

	require.ErrorIs(t, h.engine.AcceptWithdrawal(h.ctx, stranger, t0), ErrUnauthorized)
	require.ErrorIs(t, h.engine.AcceptWithdrawal(h.ctx, ownerAddr, t0.Add(timelock.Delay+1)), timelock.ErrWindowClosed)

	require.NoError(t, h.engine.ProposeWithdrawal(ownerAddr, tokenY, uint256.NewInt(30), treasury, t0))
	require.NoError(t, h.engine.AcceptWithdrawal(h.ctx, ownerAddr, t0.Add(time.Hour)))
	require.Equal(t, uint64(30), h.balance(treasury, tokenY))
	require.Equal(t, uint64(10), h.engine.GetBalanceOfContract(tokenY).Uint64())
	require.Equal(t, uint64(10), h.balance(engineAddr, tokenY))

	_, _, ok = h.engine.GetWithdrawalProposal()
	require.False(t, ok)
}

func TestWithdrawalRejected(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.ProposeWithdrawal(ownerAddr, tokenY, uint256.NewInt(0), ownerAddr, t0))
	require.ErrorIs(t, h.engine.RejectProposeWithdrawal(stranger, t0), ErrUnauthorized)
	require.NoError(t, h.engine.RejectProposeWithdrawal(ownerAddr, t0))
	require.ErrorIs(t, h.engine.AcceptWithdrawal(h.ctx, ownerAddr, t0), timelock.ErrNoProposal)
}
