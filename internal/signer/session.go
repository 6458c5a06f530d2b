// Package signer holds a session key in locked memory and produces EIP-191
// signatures over canonical action messages.
package signer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/evvm-org/p2pswap/internal/message"
)

var (
	ErrNoActiveSession    = errors.New("no active session")
	ErrSessionExpired     = errors.New("session expired")
	ErrValueLimitExceeded = errors.New("cumulative value limit exceeded")
)

// Status is a read-only snapshot of the session.
type Status struct {
	Active       bool
	TTLRemaining time.Duration
	MaxValue     *uint256.Int
	ValueUsed    *uint256.Int
	Address      common.Address
}

// SessionManager holds a decrypted session key in locked memory with TTL
// and cumulative value-limit enforcement. The key is encrypted at rest via
// memguard.Enclave and only opened momentarily during Sign.
type SessionManager struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave // encrypted-at-rest key buffer
	address   common.Address
	expiresAt time.Time
	maxValue  *uint256.Int
	valueUsed *uint256.Int
	ttl       time.Duration
	now       func() time.Time
}

// NewSessionManager creates a manager with the given default TTL.
// No session is active until Activate is called.
func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		ttl:       ttl,
		valueUsed: new(uint256.Int),
		now:       time.Now,
	}
}

// Activate seals keyBytes into a memguard Enclave, derives the account
// address from the private key, sets expiry, and resets counters.
// The caller MUST zero their copy of keyBytes after calling this.
func (sm *SessionManager) Activate(keyBytes []byte, maxValue *uint256.Int) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Derive address before sealing the key.
	privKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}

	sm.enclave = memguard.NewEnclave(keyBytes)
	sm.address = crypto.PubkeyToAddress(privKey.PublicKey)
	sm.expiresAt = sm.now().Add(sm.ttl)
	sm.maxValue = new(uint256.Int).Set(maxValue)
	sm.valueUsed = new(uint256.Int)
	return nil
}

// Address returns the session account, or the zero address when no session
// is active.
func (sm *SessionManager) Address() common.Address {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.address
}

// Sign opens the enclave momentarily and signs the EIP-191 envelope of msg,
// returning a 65-byte signature (r || s || v) with v in {27, 28}. value is
// charged against the cumulative limit only when signing succeeds.
func (sm *SessionManager) Sign(value *uint256.Int, msg string) ([]byte, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.enclave == nil {
		return nil, ErrNoActiveSession
	}

	if sm.isExpired() {
		sm.destroyLocked()
		return nil, ErrSessionExpired
	}

	newTotal, overflow := new(uint256.Int).AddOverflow(sm.valueUsed, value)
	if overflow || newTotal.Gt(sm.maxValue) {
		return nil, ErrValueLimitExceeded
	}

	buf, err := sm.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("open enclave: %w", err)
	}

	privKey, err := crypto.ToECDSA(buf.Bytes())
	buf.Destroy()
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	digest := message.Hash(msg)
	sig, err := crypto.Sign(digest[:], privKey)
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign: %w", err)
	}

	// 0/1 -> 27/28
	sig[64] += 27

	sm.valueUsed = newTotal
	return sig, nil
}

// Status returns a snapshot of the current session state.
func (sm *SessionManager) Status() Status {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.enclave == nil || sm.isExpired() {
		return Status{MaxValue: new(uint256.Int), ValueUsed: new(uint256.Int)}
	}

	return Status{
		Active:       true,
		TTLRemaining: sm.expiresAt.Sub(sm.now()),
		MaxValue:     new(uint256.Int).Set(sm.maxValue),
		ValueUsed:    new(uint256.Int).Set(sm.valueUsed),
		Address:      sm.address,
	}
}

// Destroy drops the enclave, resetting all session state.
func (sm *SessionManager) Destroy() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.destroyLocked()
}

// destroyLocked performs the actual cleanup. Caller must hold sm.mu.
func (sm *SessionManager) destroyLocked() {
	sm.enclave = nil
	sm.address = common.Address{}
	sm.valueUsed = new(uint256.Int)
	sm.maxValue = nil
}

// isExpired checks whether the session TTL has elapsed. Caller must hold sm.mu.
func (sm *SessionManager) isExpired() bool {
	return sm.now().After(sm.expiresAt)
}
