package message

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MakeOrder is the message a seller signs to open an order.
func MakeOrder(instanceID uint64, nonce *uint256.Int, tokenA, tokenB common.Address, amountA, amountB *uint256.Int) string {
	return Build(instanceID, ActionMakeOrder,
		Uint(nonce),
		Address(tokenA),
		Address(tokenB),
		Uint(amountA),
		Uint(amountB),
	)
}

// CancelOrder is the message a seller signs to withdraw an open order.
func CancelOrder(instanceID uint64, nonce *uint256.Int, tokenA, tokenB common.Address, orderID uint64) string {
	return Build(instanceID, ActionCancelOrder,
		Uint(nonce),
		Address(tokenA),
		Address(tokenB),
		Uint(uint256.NewInt(orderID)),
	)
}

// DispatchOrder is the message a filler signs to take an order. Both fill
// policies share it; the policy is chosen by the entry point.
func DispatchOrder(instanceID uint64, nonce *uint256.Int, tokenA, tokenB common.Address, orderID uint64) string {
	return Build(instanceID, ActionDispatchOrder,
		Uint(nonce),
		Address(tokenA),
		Address(tokenB),
		Uint(uint256.NewInt(orderID)),
	)
}

// Pay is the payment authorization a payer signs so the accounting ledger
// will move amount+priorityFee of asset on their behalf.
func Pay(instanceID uint64, to, asset common.Address, amount, priorityFee, nonce *uint256.Int, priorityFlag bool, executor common.Address) string {
	return Build(instanceID, ActionPay,
		Address(to),
		Address(asset),
		Uint(amount),
		Uint(priorityFee),
		Uint(nonce),
		Bool(priorityFlag),
		Address(executor),
	)
}
