package p2pswap

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestFillProportionalExact(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser(map[common.Address]uint64{tokenX: 5000})
	bob := h.newUser(map[common.Address]uint64{tokenY: 5000})
	h.makeOrder(alice, 1, 1000, 2000)

	res, err := h.engine.DispatchOrderFillProportionalFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 1, 2100, 1, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(100), res.Fee.Uint64())
	require.True(t, res.Refund.IsZero())

	require.Equal(t, uint64(2050), h.balance(alice.addr, tokenY))
	require.Equal(t, uint64(10), h.balance(relayer, tokenY))
	require.Equal(t, uint64(2900), h.balance(bob.addr, tokenY))
	require.Equal(t, uint64(1000), h.balance(bob.addr, tokenX))
	require.Equal(t, uint64(40), h.engine.GetBalanceOfContract(tokenY).Uint64())
	require.Equal(t, uint64(40), h.balance(engineAddr, tokenY))
	require.Zero(t, h.balance(engineAddr, tokenX))
	require.Equal(t, uint64(2*baseReward+4*baseReward), h.balance(relayer, principal))

	m, _ := h.engine.GetMarket(1)
	require.Zero(t, m.OrdersAvailable)
	require.Equal(t, uint64(1), m.MaxSlot)
	require.Empty(t, h.engine.GetAllMarketOrders(1))
	require.True(t, h.engine.IsNonceUsed(bob.addr, uint256.NewInt(1)))

	require.Equal(t, []EventKind{EventMarketCreated, EventOrderOpened, EventOrderFilled, EventReserveChanged}, h.sink.kinds())
}

func TestFillProportionalSurplusRefunded(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser(map[common.Address]uint64{tokenX: 5000})
	bob := h.newUser(map[common.Address]uint64{tokenY: 5000})
	h.makeOrder(alice, 1, 1000, 2000)

	res, err := h.engine.DispatchOrderFillProportionalFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 1, 2150, 1, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(50), res.Refund.Uint64())
	require.Equal(t, uint64(2900), h.balance(bob.addr, tokenY))
	require.Equal(t, uint64(2050), h.balance(alice.addr, tokenY))
	require.Equal(t, uint64(2*baseReward+5*baseReward), h.balance(relayer, principal))
}

func TestFillProportionalPriorityFeeGoesToExecutor(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser(map[common.Address]uint64{tokenX: 5000})
	bob := h.newUser(map[common.Address]uint64{tokenY: 5000})
	h.makeOrder(alice, 1, 1000, 2000)

	_, err := h.engine.DispatchOrderFillProportionalFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 1, 2100, 1, 3))
	require.NoError(t, err)
	require.Equal(t, uint64(13), h.balance(relayer, tokenY))
	require.Equal(t, uint64(2897), h.balance(bob.addr, tokenY))
	require.Equal(t, uint64(40), h.balance(engineAddr, tokenY))
}

func TestFillProportionalInsufficientIsAtomic(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser(map[common.Address]uint64{tokenX: 5000})
	bob := h.newUser(map[common.Address]uint64{tokenY: 5000})
	h.makeOrder(alice, 1, 1000, 2000)
	before := h.snapshot(alice.addr, bob.addr)

	_, err := h.engine.DispatchOrderFillProportionalFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 1, 2099, 1, 0))
	require.ErrorIs(t, err, ErrInsufficientFill)

	require.Equal(t, before, h.snapshot(alice.addr, bob.addr))
	require.False(t, h.engine.IsNonceUsed(bob.addr, uint256.NewInt(1)))
	require.Len(t, h.engine.GetAllMarketOrders(1), 1)
}

func TestFillUnderfundedIsAtomic(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser(map[common.Address]uint64{tokenX: 5000})
	bob := h.newUser(map[common.Address]uint64{tokenY: 2000})
	h.makeOrder(alice, 1, 1000, 2000)
	before := h.snapshot(alice.addr, bob.addr)

	_, err := h.engine.DispatchOrderFillProportionalFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 1, 2100, 1, 0))
	require.Error(t, err)

	require.Equal(t, before, h.snapshot(alice.addr, bob.addr))
	require.False(t, h.engine.IsNonceUsed(bob.addr, uint256.NewInt(1)))
	require.Zero(t, h.engine.GetBalanceOfContract(tokenY).Uint64())
}

func TestFillMissingOrder(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser(map[common.Address]uint64{tokenX: 5000})
	bob := h.newUser(map[common.Address]uint64{tokenY: 5000})

	_, err := h.engine.DispatchOrderFillProportionalFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 1, 2100, 1, 0))
	require.ErrorIs(t, err, ErrMarketNotFound)

	h.makeOrder(alice, 1, 1000, 2000)
	_, err = h.engine.DispatchOrderFillFixedFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 2, 2100, 1, 0))
	require.ErrorIs(t, err, ErrOrderNotFound)

	_, err = h.engine.DispatchOrderFillProportionalFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 1, 2100, 1, 0))
	require.NoError(t, err)
	_, err = h.engine.DispatchOrderFillProportionalFee(h.ctx, relayer, h.dispatchRequest(bob, 2, 1, 2100, 2, 0))
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestFillFixedDiscountBand(t *testing.T) {
	cases := []struct {
		name                  string
		fill                  uint64
		fee, refund           uint64
		seller, staker, serve uint64
		reward                uint64
	}{
		{name: "lower edge", fill: 3090, fee: 90, seller: 3045, staker: 9, serve: 36, reward: 4},
		{name: "inside band", fill: 3095, fee: 95, seller: 3047, staker: 9, serve: 38, reward: 4},
		{name: "full fee", fill: 3100, fee: 100, seller: 3050, staker: 10, serve: 40, reward: 4},
		{name: "surplus", fill: 3120, fee: 100, refund: 20, seller: 3050, staker: 10, serve: 40, reward: 5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHarness(t)
			alice := h.newUser(map[common.Address]uint64{tokenX: 5000})
			bob := h.newUser(map[common.Address]uint64{tokenY: 5000})
			h.makeOrder(alice, 1, 500, 3000)

			res, err := h.engine.DispatchOrderFillFixedFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 1, c.fill, 1, 0))
			require.NoError(t, err)
			require.Equal(t, c.fee, res.Fee.Uint64())
			require.Equal(t, c.refund, res.Refund.Uint64())
			require.Equal(t, c.seller, h.balance(alice.addr, tokenY))
			require.Equal(t, c.staker, h.balance(relayer, tokenY))
			require.Equal(t, c.serve, h.engine.GetBalanceOfContract(tokenY).Uint64())
			require.Equal(t, 5000-c.fill+c.refund, h.balance(bob.addr, tokenY))
			require.Equal(t, uint64(500), h.balance(bob.addr, tokenX))
			require.Equal(t, (2+c.reward)*baseReward, h.balance(relayer, principal))
		})
	}
}

func TestFillFixedBelowBandRejected(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser(map[common.Address]uint64{tokenX: 5000})
	bob := h.newUser(map[common.Address]uint64{tokenY: 5000})
	h.makeOrder(alice, 1, 500, 3000)
	before := h.snapshot(alice.addr, bob.addr)

	_, err := h.engine.DispatchOrderFillFixedFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 1, 3089, 1, 0))
	require.ErrorIs(t, err, ErrInsufficientFill)
	require.Equal(t, before, h.snapshot(alice.addr, bob.addr))
}

func TestFillFixedUncappedHasNoBand(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser(map[common.Address]uint64{tokenX: 5000})
	bob := h.newUser(map[common.Address]uint64{tokenY: 5000})
	h.makeOrder(alice, 1, 500, 1000)

	_, err := h.engine.DispatchOrderFillFixedFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 1, 1049, 1, 0))
	require.ErrorIs(t, err, ErrInsufficientFill)

	res, err := h.engine.DispatchOrderFillFixedFee(h.ctx, relayer, h.dispatchRequest(bob, 2, 1, 1050, 2, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(50), res.Fee.Uint64())
}

func TestFillFreesSlotForReuse(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser(map[common.Address]uint64{tokenX: 5000})
	bob := h.newUser(map[common.Address]uint64{tokenY: 5000})
	h.makeOrder(alice, 1, 100, 200)
	h.makeOrder(alice, 2, 100, 200)

	_, err := h.engine.DispatchOrderFillProportionalFee(h.ctx, relayer, h.dispatchRequest(bob, 1, 1, 210, 1, 0))
	require.NoError(t, err)

	res := h.makeOrder(alice, 3, 100, 200)
	require.Equal(t, uint64(1), res.OrderID)
}
