// Package reactor implements the single cooperative event loop that every
// asynchronous boundary in fprintcore resumes from (spec §5, §6 "Reactor").
//
// There is exactly one goroutine: the one running Run. DeferIdle is the only
// entry point safe to call from outside that goroutine (e.g. a foreign
// transport callback thread handing a completed USB transfer back in) —
// it is backed by a channel. AddTimeout/CancelTimeout mutate the reactor's
// timer heap directly and must only be called from within the reactor
// goroutine itself (i.e. from inside a DeferIdle-dispatched closure, or
// synchronously from a call chain that started there). This mirrors a
// GLib-style main loop: g_timeout_add is only safe from the loop's own
// thread, g_idle_add is safe from anywhere.
package reactor

import (
	"container/heap"
	"context"
	"time"
)

// TimeoutHandle identifies a pending timeout so it can be cancelled.
type TimeoutHandle uint64

// Reactor is the single-threaded cooperative event loop.
type Reactor struct {
	idle   chan func()
	timers timerHeap
	byID   map[TimeoutHandle]*timerEntry
	nextID TimeoutHandle
	done   chan struct{}
}

type timerEntry struct {
	id    TimeoutHandle
	at    time.Time
	cb    func()
	index int
}

// timerHeap orders pending timers by fire time.
type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// New creates a Reactor. Call Run to start draining it.
func New() *Reactor {
	return &Reactor{
		idle: make(chan func(), 256),
		byID: make(map[TimeoutHandle]*timerEntry),
		done: make(chan struct{}),
	}
}

// Run drains the reactor until ctx is cancelled. Intended to be the only
// goroutine that ever touches device/SSM/SDCP state.
func (r *Reactor) Run(ctx context.Context) {
	defer close(r.done)

	for {
		var timerC <-chan time.Time
		var timer *time.Timer
		if len(r.timers) > 0 {
			d := time.Until(r.timers[0].at)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case fn := <-r.idle:
			if timer != nil {
				timer.Stop()
			}
			fn()
		case <-timerC:
			e := heap.Pop(&r.timers).(*timerEntry)
			delete(r.byID, e.id)
			e.cb()
		}
	}
}

// DeferIdle schedules fn to run on the next reactor iteration. Safe to call
// from any goroutine. Every action completion and every driver-visible
// callback in fprintcore goes through this, never a direct synchronous
// call, per spec §5 and the deferred-completion testable property (§8.2).
func (r *Reactor) DeferIdle(fn func()) {
	r.idle <- fn
}

// AddTimeout arms a one-shot timer that invokes cb after d elapses. Must
// only be called from the reactor goroutine.
func (r *Reactor) AddTimeout(d time.Duration, cb func()) TimeoutHandle {
	r.nextID++
	id := r.nextID
	e := &timerEntry{id: id, at: time.Now().Add(d), cb: cb}
	r.byID[id] = e
	heap.Push(&r.timers, e)
	return id
}

// CancelTimeout cancels a pending timeout. Cancelling an already-fired or
// unknown handle is a no-op. Must only be called from the reactor goroutine.
func (r *Reactor) CancelTimeout(h TimeoutHandle) {
	e, ok := r.byID[h]
	if !ok {
		return
	}
	heap.Remove(&r.timers, e.index)
	delete(r.byID, h)
}

// Stopped is closed once Run returns.
func (r *Reactor) Stopped() <-chan struct{} {
	return r.done
}
