package p2pswap

import "errors"

// Request failures. Every failure aborts the whole request: no order is
// touched, no nonce consumed and no funds moved.
var (
	// Authorization.
	ErrInvalidSignature = errors.New("invalid signature")

	// State consistency.
	ErrMarketNotFound = errors.New("market not found")
	ErrOrderNotFound  = errors.New("order not found")
	ErrNotOrderOwner  = errors.New("caller is not the order seller")

	// Economic policy.
	ErrInsufficientFill = errors.New("fill amount below required minimum")
	ErrAmountOverflow   = errors.New("amount overflow")

	// Governance.
	ErrUnauthorized        = errors.New("caller not authorized")
	ErrInvalidPercentage   = errors.New("percentage out of range or split not totalling 10000 basis points")
	ErrInsufficientReserve = errors.New("withdrawal exceeds service reserve")
)
