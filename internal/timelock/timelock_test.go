package timelock

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Unix(1_700_000_000, 0)

func TestAcceptWithinWindow(t *testing.T) {
	p := New(500)
	p.Propose(300, t0)

	_, deadline, ok := p.Proposed()
	if !ok || !deadline.Equal(t0.Add(Delay)) {
		t.Fatalf("unexpected pending state: ok=%v deadline=%s", ok, deadline)
	}

	got, err := p.Accept(deadline.Add(-time.Second))
	if err != nil {
		t.Fatalf("accept at T-1: %v", err)
	}
	if got != 300 || p.Current() != 300 {
		t.Fatalf("expected current=300, got %d", p.Current())
	}
	if _, _, ok := p.Proposed(); ok {
		t.Fatal("proposal must be cleared after accept")
	}
}

func TestAcceptAtDeadline(t *testing.T) {
	p := New(500)
	p.Propose(300, t0)
	if _, err := p.Accept(t0.Add(Delay)); err != nil {
		t.Fatalf("deadline is inclusive: %v", err)
	}
}

func TestLockoutAfterDeadline(t *testing.T) {
	p := New(500)
	p.Propose(300, t0)
	late := t0.Add(Delay).Add(time.Second)

	if _, err := p.Accept(late); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("expected ErrWindowClosed on accept, got %v", err)
	}
	if err := p.Reject(late); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("expected ErrWindowClosed on reject, got %v", err)
	}
	if p.Current() != 500 {
		t.Fatalf("current must be unchanged, got %d", p.Current())
	}
	if _, _, ok := p.Proposed(); !ok {
		t.Fatal("stale proposal stays in place until overwritten")
	}

	// A new proposal overwrites the stale one and reopens the window.
	p.Propose(250, late)
	if _, err := p.Accept(late.Add(time.Hour)); err != nil {
		t.Fatalf("accept after re-propose: %v", err)
	}
	if p.Current() != 250 {
		t.Fatalf("expected 250, got %d", p.Current())
	}
}

func TestReject(t *testing.T) {
	p := New("owner-a")
	p.Propose("owner-b", t0)
	if err := p.Reject(t0.Add(time.Minute)); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if p.Current() != "owner-a" {
		t.Fatalf("unexpected current %q", p.Current())
	}
	if _, err := p.Accept(t0.Add(2 * time.Minute)); !errors.Is(err, ErrNoProposal) {
		t.Fatalf("expected ErrNoProposal after reject, got %v", err)
	}
}

func TestNothingPending(t *testing.T) {
	p := New(1)
	if err := p.Reject(t0); !errors.Is(err, ErrNoProposal) {
		t.Fatalf("expected ErrNoProposal, got %v", err)
	}
}

func TestPendingDoesNotCommit(t *testing.T) {
	p := New(1)
	p.Propose(2, t0)
	v, err := p.Pending(t0)
	if err != nil || v != 2 {
		t.Fatalf("pending: v=%d err=%v", v, err)
	}
	if p.Current() != 1 {
		t.Fatal("Pending must not commit")
	}
	if _, err := p.Pending(t0.Add(Delay + time.Nanosecond)); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("expected ErrWindowClosed, got %v", err)
	}
}
