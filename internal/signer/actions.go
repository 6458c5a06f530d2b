package signer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/evvm-org/p2pswap/internal/message"
)

// Signed is a canonical message together with the session's signature.
type Signed struct {
	Message   string
	Signature []byte
	Signer    common.Address
}

// SignatureHex returns the 0x-prefixed signature.
func (s Signed) SignatureHex() string { return hexutil.Encode(s.Signature) }

// Signer produces signatures for one ecosystem instance. Only pay messages
// move funds, so only they are charged against the session's value limit.
type Signer struct {
	instanceID uint64
	session    *SessionManager
}

// New creates a Signer backed by session.
func New(instanceID uint64, session *SessionManager) *Signer {
	return &Signer{instanceID: instanceID, session: session}
}

// MakeOrder signs a makeOrder message.
func (s *Signer) MakeOrder(nonce *uint256.Int, tokenA, tokenB common.Address, amountA, amountB *uint256.Int) (Signed, error) {
	return s.sign(nil, message.MakeOrder(s.instanceID, nonce, tokenA, tokenB, amountA, amountB))
}

// CancelOrder signs a cancelOrder message.
func (s *Signer) CancelOrder(nonce *uint256.Int, tokenA, tokenB common.Address, orderID uint64) (Signed, error) {
	return s.sign(nil, message.CancelOrder(s.instanceID, nonce, tokenA, tokenB, orderID))
}

// DispatchOrder signs a dispatchOrder message.
func (s *Signer) DispatchOrder(nonce *uint256.Int, tokenA, tokenB common.Address, orderID uint64) (Signed, error) {
	return s.sign(nil, message.DispatchOrder(s.instanceID, nonce, tokenA, tokenB, orderID))
}

// Pay signs a payment authorization and charges amount+priorityFee against
// the session limit.
func (s *Signer) Pay(to, asset common.Address, amount, priorityFee, nonce *uint256.Int, priorityFlag bool, executor common.Address) (Signed, error) {
	value, overflow := new(uint256.Int).AddOverflow(zero(amount), zero(priorityFee))
	if overflow {
		return Signed{}, ErrValueLimitExceeded
	}
	return s.sign(value, message.Pay(s.instanceID, to, asset, amount, priorityFee, nonce, priorityFlag, executor))
}

func (s *Signer) sign(value *uint256.Int, msg string) (Signed, error) {
	sig, err := s.session.Sign(zero(value), msg)
	if err != nil {
		return Signed{}, err
	}
	return Signed{Message: msg, Signature: sig, Signer: s.session.Address()}, nil
}

func zero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
