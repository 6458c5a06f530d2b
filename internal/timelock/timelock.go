// Package timelock implements the propose/accept/reject state machine that
// guards every tunable engine parameter.
//
// A proposal opens a decision window that closes Delay after it was made.
// Acceptance and rejection are both valid only while now <= deadline. Once
// the deadline passes the proposal is inert until a new Propose overwrites
// it.
package timelock

import (
	"errors"
	"fmt"
	"time"
)

// Delay is the length of the decision window opened by Propose.
const Delay = 24 * time.Hour

var (
	ErrNoProposal   = errors.New("timelock: no pending proposal")
	ErrWindowClosed = errors.New("timelock: decision window closed")
)

// Proposal holds the live value of one parameter together with its pending
// replacement.
type Proposal[T any] struct {
	current      T
	proposed     T
	timeToAccept time.Time
}

// New creates a Proposal with the given live value and nothing pending.
func New[T any](current T) *Proposal[T] {
	return &Proposal[T]{current: current}
}

// Current returns the live value.
func (p *Proposal[T]) Current() T { return p.current }

// Proposed returns the pending value and its deadline. ok is false when
// nothing is pending.
func (p *Proposal[T]) Proposed() (value T, deadline time.Time, ok bool) {
	if p.timeToAccept.IsZero() {
		var zero T
		return zero, time.Time{}, false
	}
	return p.proposed, p.timeToAccept, true
}

// Pending returns the pending value if the decision window is still open at
// now. It does not change any state.
func (p *Proposal[T]) Pending(now time.Time) (T, error) {
	if err := p.checkWindow(now); err != nil {
		var zero T
		return zero, err
	}
	return p.proposed, nil
}

// Propose replaces any pending value with v and sets the deadline to
// now+Delay.
func (p *Proposal[T]) Propose(v T, now time.Time) {
	p.proposed = v
	p.timeToAccept = now.Add(Delay)
}

// Accept commits the pending value.
func (p *Proposal[T]) Accept(now time.Time) (T, error) {
	if err := p.checkWindow(now); err != nil {
		var zero T
		return zero, err
	}
	p.current = p.proposed
	p.clear()
	return p.current, nil
}

// Reject discards the pending value.
func (p *Proposal[T]) Reject(now time.Time) error {
	if err := p.checkWindow(now); err != nil {
		return err
	}
	p.clear()
	return nil
}

func (p *Proposal[T]) checkWindow(now time.Time) error {
	if p.timeToAccept.IsZero() {
		return ErrNoProposal
	}
	if now.After(p.timeToAccept) {
		return fmt.Errorf("%w: deadline %s", ErrWindowClosed, p.timeToAccept.UTC().Format(time.RFC3339))
	}
	return nil
}

func (p *Proposal[T]) clear() {
	var zero T
	p.proposed = zero
	p.timeToAccept = time.Time{}
}
