// Package ssm implements the sequential state machine engine drivers use to
// express multi-step USB protocol exchanges (spec §4.2). Grounded on
// original_source/libfprint/fpi-ssm.h: fpi_ssm_new/start/next_state/
// jump_to_state/mark_completed/mark_failed/start_subsm map directly onto
// Machine's New/Start/Next/JumpTo/MarkCompleted/MarkFailed/StartSub.
package ssm

import (
	"fmt"
	"time"

	"fprintcore/internal/reactor"
)

// Handler is invoked exactly once per state entry, as required by the SSM
// engine invariants (spec §4.2 "Invariants").
type Handler func(m *Machine)

// CompletedCallback fires exactly once per machine, with err set on failure.
type CompletedCallback func(m *Machine, err error)

// Machine is a finite sequence of integer-indexed states 0..N-1.
type Machine struct {
	rx          *reactor.Reactor
	handler     Handler
	nrStates    int
	cur         int
	onCompleted CompletedCallback
	data        any
	destroyData func(any)
	err         error
	parent      *Machine
	timeout     reactor.TimeoutHandle
	hasTimeout  bool
	terminated  bool

	// userDevice is opaque to the engine; drivers stash their device handle
	// here so handler functions can reach it without a global.
	userDevice any
}

// New creates a machine with nrStates states (0..nrStates-1) and the given
// per-state handler. The device reference is opaque to the engine — it is
// handed back to the handler on every invocation, matching fpi_ssm_new's
// (FpDevice *dev, handler, nr_states) signature.
func New(rx *reactor.Reactor, device any, nrStates int, handler Handler) *Machine {
	if nrStates <= 0 {
		panic("ssm: nrStates must be positive")
	}
	return &Machine{
		rx:         rx,
		handler:    handler,
		nrStates:   nrStates,
		userDevice: device,
	}
}

// Device returns the opaque device reference passed to New.
func (m *Machine) Device() any { return m.userDevice }

// CurState returns the currently active state index.
func (m *Machine) CurState() int { return m.cur }

// NrStates returns the terminal state count N.
func (m *Machine) NrStates() int { return m.nrStates }

// SetData attaches a task payload to the machine, with an optional
// destructor run when the machine terminates (completed or failed).
func (m *Machine) SetData(data any, destroy func(any)) {
	m.data = data
	m.destroyData = destroy
}

// Data returns the attached task payload, or nil.
func (m *Machine) Data() any { return m.data }

// Error returns the latched failure error, or nil if the machine has not
// failed.
func (m *Machine) Error() error { return m.err }

// Start invokes the handler for state 0 and arranges for onCompleted to run
// exactly once when the machine terminates.
func (m *Machine) Start(onCompleted CompletedCallback) {
	if m.terminated {
		panic("ssm: Start called on a terminated machine")
	}
	m.onCompleted = onCompleted
	m.cur = 0
	m.handler(m)
}

func (m *Machine) requireLive(op string) {
	if m.terminated {
		panic(fmt.Sprintf("ssm: %s called on a terminated machine", op))
	}
}

// Next advances to the next state and re-invokes the handler. If the
// current state was the last one (N-1), this behaves as MarkCompleted
// instead, per spec §4.2.
func (m *Machine) Next() {
	m.requireLive("Next")
	m.clearTimeout()
	if m.cur == m.nrStates-1 {
		m.MarkCompleted()
		return
	}
	m.cur++
	m.handler(m)
}

// JumpTo sets the current state to i and invokes the handler. i must be
// less than NrStates.
func (m *Machine) JumpTo(i int) {
	m.requireLive("JumpTo")
	if i < 0 || i >= m.nrStates {
		panic(fmt.Sprintf("ssm: JumpTo(%d) out of range [0,%d)", i, m.nrStates))
	}
	m.clearTimeout()
	m.cur = i
	m.handler(m)
}

// NextDelayed schedules Next to run after d elapses, via the reactor.
// Cancelling the owning device's action (driver responsibility) should
// call CancelDelayed so the timer does not fire into a torn-down machine.
func (m *Machine) NextDelayed(d time.Duration) {
	m.requireLive("NextDelayed")
	m.clearTimeout()
	m.timeout = m.rx.AddTimeout(d, func() {
		if m.terminated {
			return
		}
		m.hasTimeout = false
		m.Next()
	})
	m.hasTimeout = true
}

// CancelDelayed cancels a pending NextDelayed timer, if any. Drivers call
// this from their cancellation handling so an in-flight delayed transition
// does not fire after the machine has been failed out from under it.
func (m *Machine) CancelDelayed() {
	m.clearTimeout()
}

func (m *Machine) clearTimeout() {
	if m.hasTimeout {
		m.rx.CancelTimeout(m.timeout)
		m.hasTimeout = false
	}
}

// MarkCompleted terminates the machine successfully: the completion
// callback fires with err=nil, then the machine is destroyed.
func (m *Machine) MarkCompleted() {
	m.requireLive("MarkCompleted")
	m.finish(nil)
}

// MarkFailed latches err and terminates the machine. Subsequent control
// calls on this machine panic.
func (m *Machine) MarkFailed(err error) {
	m.requireLive("MarkFailed")
	if err == nil {
		err = fmt.Errorf("ssm: MarkFailed called with nil error")
	}
	m.err = err
	m.finish(err)
}

func (m *Machine) finish(err error) {
	m.clearTimeout()
	m.terminated = true
	if m.destroyData != nil {
		m.destroyData(m.data)
		m.destroyData = nil
		m.data = nil
	}
	cb := m.onCompleted
	m.onCompleted = nil
	if cb != nil {
		cb(m, err)
	}
}

// StartSub runs child to completion as a sub-machine of parent. If child
// fails, parent is failed with the same error; otherwise parent advances
// to its next state. Grounded on fpi_ssm_start_subsm.
func StartSub(parent, child *Machine) {
	child.parent = parent
	child.Start(func(_ *Machine, err error) {
		if err != nil {
			parent.MarkFailed(err)
			return
		}
		parent.Next()
	})
}

// TransferResult is the outcome of a USB transfer a driver has bound to a
// state via TransferCallback.
type TransferResult struct {
	Length int
	Err    error
}

// TransferCallback returns a standard USB-transfer completion callback:
// success advances the machine with Next, failure calls MarkFailed. Drivers
// hand this to the transport layer and associate it with the in-flight
// transfer before submission, mirroring fpi_ssm_usb_transfer_cb.
func TransferCallback(m *Machine) func(TransferResult) {
	return func(res TransferResult) {
		if res.Err != nil {
			m.MarkFailed(res.Err)
			return
		}
		m.Next()
	}
}
