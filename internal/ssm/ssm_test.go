package ssm

import (
	"context"
	"errors"
	"testing"
	"time"

	"fprintcore/internal/reactor"
)

func newRunningReactor(t *testing.T) (*reactor.Reactor, func()) {
	t.Helper()
	rx := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	go rx.Run(ctx)
	return rx, cancel
}

// S5 (SSM delayed): a 3-state machine that uses NextDelayed in state 1; the
// handler for state 2 must not run until >=50ms have elapsed.
func TestDelayedTransitionWaits(t *testing.T) {
	rx, cancel := newRunningReactor(t)
	defer cancel()

	var entries []int
	var enteredAt []time.Time
	start := time.Now()

	var m *Machine
	m = New(rx, nil, 3, func(mm *Machine) {
		entries = append(entries, mm.CurState())
		enteredAt = append(enteredAt, time.Now())
		switch mm.CurState() {
		case 0:
			mm.Next()
		case 1:
			mm.NextDelayed(50 * time.Millisecond)
		case 2:
			mm.MarkCompleted()
		}
	})

	done := make(chan error, 1)
	rx.DeferIdle(func() {
		m.Start(func(_ *Machine, err error) { done <- err })
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("machine did not complete")
	}

	if got, want := entries, []int{0, 1, 2}; len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	if gap := enteredAt[2].Sub(enteredAt[1]); gap < 50*time.Millisecond {
		t.Fatalf("state 2 entered only %v after state 1, want >= 50ms", gap)
	}
	_ = start
}

func TestNextAtLastStateCompletes(t *testing.T) {
	rx, cancel := newRunningReactor(t)
	defer cancel()

	entries := 0
	m := New(rx, nil, 2, func(mm *Machine) {
		entries++
		mm.Next()
	})

	done := make(chan error, 1)
	rx.DeferIdle(func() {
		m.Start(func(_ *Machine, err error) { done <- err })
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("machine did not complete")
	}
	// Next() called from the last state (1) must mark the machine completed
	// without re-entering the handler a third time.
	if entries != 2 {
		t.Fatalf("handler entered %d times, want 2", entries)
	}
}

func TestMarkFailedPropagatesError(t *testing.T) {
	rx, cancel := newRunningReactor(t)
	defer cancel()

	wantErr := errors.New("boom")
	m := New(rx, nil, 2, func(mm *Machine) {
		mm.MarkFailed(wantErr)
	})

	done := make(chan error, 1)
	rx.DeferIdle(func() {
		m.Start(func(_ *Machine, err error) { done <- err })
	})

	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Fatalf("got err %v, want %v", err, wantErr)
		}
	case <-time.After(time.Second):
		t.Fatal("machine did not complete")
	}
}

func TestJumpToOutOfRangePanics(t *testing.T) {
	rx, cancel := newRunningReactor(t)
	defer cancel()

	m := New(rx, nil, 2, func(mm *Machine) {})
	// JumpTo runs on the reactor goroutine, so the panic has to be
	// recovered there and reported back to the test goroutine.
	panicked := make(chan bool, 1)
	rx.DeferIdle(func() {
		defer func() { panicked <- recover() != nil }()
		m.Start(func(_ *Machine, _ error) {})
		m.JumpTo(5)
	})
	if !<-panicked {
		t.Fatal("expected JumpTo out of range to panic")
	}
}

// S5's terminality property (§8.5): for an SSM with N states, at most N
// distinct state-handler entries occur before completion, absent JumpTo.
func TestTerminalityBound(t *testing.T) {
	rx, cancel := newRunningReactor(t)
	defer cancel()

	const n = 4
	var entries []int
	m := New(rx, nil, n, func(mm *Machine) {
		entries = append(entries, mm.CurState())
		mm.Next()
	})

	done := make(chan struct{})
	rx.DeferIdle(func() {
		m.Start(func(_ *Machine, _ error) { close(done) })
	})
	<-done

	if len(entries) != n {
		t.Fatalf("entries = %v, want exactly %d", entries, n)
	}
}

func TestStartSubFailurePropagates(t *testing.T) {
	rx, cancel := newRunningReactor(t)
	defer cancel()

	childErr := errors.New("child failed")
	child := New(rx, nil, 1, func(mm *Machine) {
		mm.MarkFailed(childErr)
	})

	parentEntries := 0
	parent := New(rx, nil, 2, func(mm *Machine) {
		parentEntries++
		if mm.CurState() == 0 {
			StartSub(mm, child)
		}
	})

	done := make(chan error, 1)
	rx.DeferIdle(func() {
		parent.Start(func(_ *Machine, err error) { done <- err })
	})

	select {
	case err := <-done:
		if !errors.Is(err, childErr) {
			t.Fatalf("parent error = %v, want %v", err, childErr)
		}
	case <-time.After(time.Second):
		t.Fatal("parent did not complete")
	}
	if parentEntries != 1 {
		t.Fatalf("parent handler entered %d times, want 1 (sub-machine failure should not re-enter state 0)", parentEntries)
	}
}

func TestStartSubSuccessAdvancesParent(t *testing.T) {
	rx, cancel := newRunningReactor(t)
	defer cancel()

	child := New(rx, nil, 1, func(mm *Machine) {
		mm.MarkCompleted()
	})

	var states []int
	parent := New(rx, nil, 2, func(mm *Machine) {
		states = append(states, mm.CurState())
		if mm.CurState() == 0 {
			StartSub(mm, child)
		} else {
			mm.MarkCompleted()
		}
	})

	done := make(chan error, 1)
	rx.DeferIdle(func() {
		parent.Start(func(_ *Machine, err error) { done <- err })
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected parent error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("parent did not complete")
	}
	if got, want := states, []int{0, 1}; len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("states = %v, want %v", got, want)
	}
}

func TestTransferCallbackAdvancesOrFails(t *testing.T) {
	rx, cancel := newRunningReactor(t)
	defer cancel()

	var cb func(TransferResult)
	completed := make(chan error, 1)
	m := New(rx, nil, 2, func(mm *Machine) {
		if mm.CurState() == 0 {
			cb = TransferCallback(mm)
			cb(TransferResult{Length: 4})
		} else {
			mm.MarkCompleted()
		}
	})

	rx.DeferIdle(func() {
		m.Start(func(_ *Machine, err error) { completed <- err })
	})

	select {
	case err := <-completed:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("did not complete")
	}

	wantErr := errors.New("transfer failed")
	failed := make(chan error, 1)
	m2 := New(rx, nil, 2, func(mm *Machine) {
		TransferCallback(mm)(TransferResult{Err: wantErr})
	})
	rx.DeferIdle(func() {
		m2.Start(func(_ *Machine, err error) { failed <- err })
	})

	select {
	case err := <-failed:
		if !errors.Is(err, wantErr) {
			t.Fatalf("got err %v, want %v", err, wantErr)
		}
	case <-time.After(time.Second):
		t.Fatal("did not fail")
	}
}
