package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/evvm-org/p2pswap/internal/evvm"
)

// grant is one initial balance for the reference ledger.
type grant struct {
	Account common.Address
	Asset   common.Address
	Amount  *uint256.Int
}

// parseGrant parses "account:asset:amount" with a decimal amount.
func parseGrant(s string) (grant, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return grant{}, fmt.Errorf("grant %q: want account:asset:amount", s)
	}
	if !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
		return grant{}, fmt.Errorf("grant %q: invalid address", s)
	}
	amount, err := uint256.FromDecimal(parts[2])
	if err != nil {
		return grant{}, fmt.Errorf("grant %q: %w", s, err)
	}
	return grant{
		Account: common.HexToAddress(parts[0]),
		Asset:   common.HexToAddress(parts[1]),
		Amount:  amount,
	}, nil
}

// seedLedger applies initial balances and staker registrations.
func seedLedger(ledger *evvm.MemoryLedger, grants, stakers []string) error {
	for _, s := range grants {
		g, err := parseGrant(s)
		if err != nil {
			return err
		}
		ledger.Mint(g.Account, g.Asset, g.Amount)
	}
	for _, s := range stakers {
		if !common.IsHexAddress(s) {
			return fmt.Errorf("staker %q: invalid address", s)
		}
		ledger.SetStaker(common.HexToAddress(s), true)
	}
	return nil
}
