// Package nonce tracks per-account replay protection identifiers.
//
// Two disjoint spaces exist. Async nonces are arbitrary caller-chosen values,
// unordered, each usable exactly once. Sync nonces must be consumed in strict
// sequence starting at zero.
package nonce

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrNonceUsed     = errors.New("nonce already used")
	ErrNonceSequence = errors.New("nonce out of sequence")
)

// AsyncLedger records consumed async nonces per account. Records are
// append-only.
type AsyncLedger struct {
	mu   sync.RWMutex
	used map[common.Address]map[uint256.Int]struct{}
}

// NewAsyncLedger creates an empty AsyncLedger.
func NewAsyncLedger() *AsyncLedger {
	return &AsyncLedger{
		used: make(map[common.Address]map[uint256.Int]struct{}),
	}
}

// IsUsed reports whether n has been consumed for user.
func (l *AsyncLedger) IsUsed(user common.Address, n *uint256.Int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.used[user][*n]
	return ok
}

// Verify fails with ErrNonceUsed if n has already been consumed for user.
// It has no side effects.
func (l *AsyncLedger) Verify(user common.Address, n *uint256.Int) error {
	if l.IsUsed(user, n) {
		return fmt.Errorf("%w: %s for %s", ErrNonceUsed, n.Dec(), user.Hex())
	}
	return nil
}

// MarkUsed consumes n for user. It must be called exactly once per accepted
// request, after every other step of that request succeeded; a second call
// for the same pair returns ErrNonceUsed.
func (l *AsyncLedger) MarkUsed(user common.Address, n *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.used[user]
	if !ok {
		set = make(map[uint256.Int]struct{})
		l.used[user] = set
	}
	if _, dup := set[*n]; dup {
		return fmt.Errorf("%w: %s for %s", ErrNonceUsed, n.Dec(), user.Hex())
	}
	set[*n] = struct{}{}
	return nil
}

// SyncLedger tracks the next expected sequential nonce per account.
type SyncLedger struct {
	mu   sync.RWMutex
	next map[common.Address]uint64
}

// NewSyncLedger creates an empty SyncLedger.
func NewSyncLedger() *SyncLedger {
	return &SyncLedger{next: make(map[common.Address]uint64)}
}

// Next returns the nonce user must present on their next sync request.
func (l *SyncLedger) Next(user common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next[user]
}

// Verify fails with ErrNonceSequence unless n equals Next(user).
func (l *SyncLedger) Verify(user common.Address, n *uint256.Int) error {
	want := l.Next(user)
	if !n.IsUint64() || n.Uint64() != want {
		return fmt.Errorf("%w: got %s, want %d", ErrNonceSequence, n.Dec(), want)
	}
	return nil
}

// Increment advances user's sequence by one.
func (l *SyncLedger) Increment(user common.Address) {
	l.mu.Lock()
	l.next[user]++
	l.mu.Unlock()
}
