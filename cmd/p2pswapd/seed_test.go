package main

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/evvm-org/p2pswap/internal/evvm"
)

func TestSeedLedger(t *testing.T) {
	ledger := evvm.NewMemoryLedger(1, uint256.NewInt(10))
	alice := "0x00000000000000000000000000000000000a11ce"
	token := "0x00000000000000000000000000000000000000aa"

	err := seedLedger(ledger,
		[]string{alice + ":" + token + ":1500", alice + ":" + token + ":500"},
		[]string{alice},
	)
	if err != nil {
		t.Fatalf("seedLedger: %v", err)
	}
	if got := ledger.Balance(common.HexToAddress(alice), common.HexToAddress(token)); got.Uint64() != 2000 {
		t.Errorf("balance = %s, want 2000", got)
	}
	ok, err := ledger.IsStaker(context.Background(), common.HexToAddress(alice))
	if err != nil || !ok {
		t.Errorf("expected staker, got %v (%v)", ok, err)
	}
}

func TestParseGrantRejectsMalformed(t *testing.T) {
	for _, s := range []string{
		"",
		"0x00000000000000000000000000000000000a11ce:0xaa",
		"nothex:0x00000000000000000000000000000000000000aa:1",
		"0x00000000000000000000000000000000000a11ce:0x00000000000000000000000000000000000000aa:-1",
		"0x00000000000000000000000000000000000a11ce:0x00000000000000000000000000000000000000aa:1e3",
	} {
		if _, err := parseGrant(s); err == nil {
			t.Errorf("parseGrant(%q) should fail", s)
		}
	}
	if err := seedLedger(evvm.NewMemoryLedger(1, uint256.NewInt(1)), nil, []string{"0x12"}); err == nil {
		t.Error("expected invalid staker to fail")
	}
}
