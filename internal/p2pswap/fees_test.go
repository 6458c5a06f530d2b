package p2pswap

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestProportionalFee(t *testing.T) {
	cases := []struct {
		amount, bps, want uint64
	}{
		{10_000, 500, 500},
		{10_001, 500, 500},
		{19_999, 500, 999},
		{0, 500, 0},
		{7, 10_000, 7},
		{1_000, 0, 0},
	}
	for _, c := range cases {
		got, err := ProportionalFee(u(c.amount), c.bps)
		require.NoError(t, err)
		require.Equal(t, c.want, got.Uint64(), "amount=%d bps=%d", c.amount, c.bps)
	}
}

func TestProportionalFeeOverflow(t *testing.T) {
	top := new(uint256.Int).SetAllOne()
	_, err := ProportionalFee(top, 500)
	require.ErrorIs(t, err, ErrAmountOverflow)
}

func TestFixedFee(t *testing.T) {
	// 3000 * 5% = 150 exceeds the cap of 100.
	fee, fee10, err := FixedFee(u(3000), 500, u(100))
	require.NoError(t, err)
	require.Equal(t, uint64(100), fee.Uint64())
	require.Equal(t, uint64(10), fee10.Uint64())

	// 1000 * 5% = 50 is under the cap.
	fee, fee10, err = FixedFee(u(1000), 500, u(100))
	require.NoError(t, err)
	require.Equal(t, uint64(50), fee.Uint64())
	require.True(t, fee10.IsZero())

	// Equal to the cap is not capped.
	fee, fee10, err = FixedFee(u(2000), 500, u(100))
	require.NoError(t, err)
	require.Equal(t, uint64(100), fee.Uint64())
	require.True(t, fee10.IsZero())
}

func TestFinalFixedFee(t *testing.T) {
	amountB, fee, fee10 := u(3000), u(100), u(10)
	cases := []struct {
		fill, want uint64
	}{
		{3090, 90},
		{3095, 95},
		{3099, 99},
		{3100, 100},
		{3150, 100},
	}
	for _, c := range cases {
		got := FinalFixedFee(u(c.fill), amountB, fee, fee10)
		require.Equal(t, c.want, got.Uint64(), "fill=%d", c.fill)
	}

	// Without a discount band the fee is always the full fee.
	require.Equal(t, uint64(50), FinalFixedFee(u(1050), u(1000), u(50), u(0)).Uint64())
	require.Equal(t, uint64(50), FinalFixedFee(u(1070), u(1000), u(50), u(0)).Uint64())
}

func TestPercentageValid(t *testing.T) {
	require.True(t, Percentage{5000, 4000, 1000}.Valid())
	require.True(t, Percentage{10_000, 0, 0}.Valid())
	require.False(t, Percentage{5000, 4000, 999}.Valid())
	require.False(t, Percentage{5000, 4000, 1001}.Valid())
	require.False(t, Percentage{}.Valid())
}
