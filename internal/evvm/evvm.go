// Package evvm declares the narrow settlement and staking surface the order
// book consumes from the external virtual ledger, and provides an in-memory
// reference ledger that implements it.
package evvm

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PrincipalToken is the reserved identifier of the ecosystem's principal
// asset, in which staker rewards are denominated.
var PrincipalToken = common.HexToAddress("0x0000000000000000000000000000000000000001")

var (
	ErrInvalidPaymentSignature = errors.New("evvm: invalid payment signature")
	ErrInsufficientBalance     = errors.New("evvm: insufficient balance")
	ErrExecutorMismatch        = errors.New("evvm: payment executor mismatch")
	ErrAmountOverflow          = errors.New("evvm: amount overflow")
)

// Payment is a transfer pulled from From under From's own signed payment
// authorization. It is independent of any order-book action signature.
type Payment struct {
	From         common.Address
	To           common.Address
	Asset        common.Address
	Amount       *uint256.Int
	PriorityFee  *uint256.Int
	Nonce        *uint256.Int
	PriorityFlag bool // async nonce space when true, sync otherwise
	Executor     common.Address
	Signature    []byte
}

// Payout is a single recipient of a batched credit.
type Payout struct {
	To     common.Address
	Amount *uint256.Int
}

// Transfers are the settlement primitives available inside a unit of work.
type Transfers interface {
	// RequestTransfer moves Amount to To and PriorityFee to the calling
	// service, debiting From. A calling service that is a staker also earns
	// one base reward unit of the principal token.
	RequestTransfer(ctx context.Context, p Payment) error

	// CreditTransfer pays out of the calling service's own balance. No
	// signature is required.
	CreditTransfer(ctx context.Context, to, asset common.Address, amount *uint256.Int) error

	// Balance returns the calling service's balance of asset as staged in
	// this unit of work.
	Balance(ctx context.Context, asset common.Address) (*uint256.Int, error)

	// DisperseCredit pays several recipients of the same asset out of the
	// calling service's balance in one transfer.
	DisperseCredit(ctx context.Context, asset common.Address, payouts []Payout) error
}

// Ledger is the accounting service.
type Ledger interface {
	// Atomic runs fn as a single unit of work on behalf of service. Every
	// transfer made through tx is discarded if fn returns an error.
	Atomic(ctx context.Context, service common.Address, fn func(tx Transfers) error) error
}

// Staking answers staker-status and reward-unit queries.
type Staking interface {
	IsStaker(ctx context.Context, account common.Address) (bool, error)
	BaseRewardUnit(ctx context.Context) (*uint256.Int, error)
}
