// Package message builds the canonical strings users sign for each order-book
// and payment action, and verifies signatures over them.
//
// A canonical message is the comma-joined list
//
//	{instanceId},{action},{arg1},...,{argN}
//
// which is signed under the personal-message envelope
// "\x19Ethereum Signed Message:\n" + len(message) + message. The order of the
// arguments for every action is part of the wire format.
package message

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Action identifiers embedded in signed messages.
const (
	ActionMakeOrder     = "makeOrder"
	ActionCancelOrder   = "cancelOrder"
	ActionDispatchOrder = "dispatchOrder"
	ActionPay           = "pay"
)

const envelopePrefix = "\x19Ethereum Signed Message:\n"

var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrRecoveryFailed     = errors.New("signer recovery failed")
)

// Build joins the instance identifier, action and rendered arguments into the
// canonical message.
func Build(instanceID uint64, action string, args ...string) string {
	parts := make([]string, 0, len(args)+2)
	parts = append(parts, strconv.FormatUint(instanceID, 10), action)
	parts = append(parts, args...)
	return strings.Join(parts, ",")
}

// Envelope returns the length-prefixed bytes that are hashed for signing.
func Envelope(msg string) []byte {
	return []byte(envelopePrefix + strconv.Itoa(len(msg)) + msg)
}

// Hash returns keccak256(Envelope(msg)).
func Hash(msg string) common.Hash {
	return crypto.Keccak256Hash(Envelope(msg))
}

// Uint renders an unsigned integer argument in decimal. A nil value renders as
// zero.
func Uint(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// Address renders an account or asset identifier as lowercase 0x-prefixed hex.
func Address(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// Bool renders a flag as "true" or "false".
func Bool(b bool) string {
	return strconv.FormatBool(b)
}

// Recover returns the account that produced sig over the canonical message
// msg. The signature is the 65-byte r||s||v form; v may be 0/1 or 27/28.
func Recover(msg string, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrMalformedSignature, len(sig))
	}
	rsv := make([]byte, crypto.SignatureLength)
	copy(rsv, sig)
	if rsv[crypto.RecoveryIDOffset] >= 27 {
		rsv[crypto.RecoveryIDOffset] -= 27
	}
	if rsv[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrMalformedSignature, sig[crypto.RecoveryIDOffset])
	}

	pub, err := crypto.SigToPub(Hash(msg).Bytes(), rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether sig over the canonical message for (instanceID,
// action, args) recovers to expected. Malformed signatures yield false.
func Verify(instanceID uint64, action string, args []string, sig []byte, expected common.Address) bool {
	return VerifyMessage(Build(instanceID, action, args...), sig, expected)
}

// VerifyMessage is Verify for an already-built canonical message.
func VerifyMessage(msg string, sig []byte, expected common.Address) bool {
	signer, err := Recover(msg, sig)
	if err != nil {
		return false
	}
	return signer == expected
}

// DecodeSignature parses a 0x-prefixed hex signature.
func DecodeSignature(s string) ([]byte, error) {
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: length %d", ErrMalformedSignature, len(sig))
	}
	return sig, nil
}
