package executable

import (
	"sync"

	"github.com/0xef53/phoenix-fm/core"
)

type State int

const (
	StateCreated State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}

	return "unknown"
}

func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Lifecycle is the state machine of an executable:
//
//	Created -> Running -> {Completed, Cancelled, Failed}
//
// Only one terminal transition succeeds. A cancellation request ends the
// executable as Cancelled only if the worker observed it; a request that
// arrives after the natural completion does not change the state. An
// invocation that failed with a relaunchable error may be started again.
type Lifecycle struct {
	mu sync.Mutex

	state           State
	cancelRequested bool
	cancelObserved  bool
	relaunchable    bool
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

// Begin moves the executable into the running state.
func (l *Lifecycle) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.state == StateCreated:
	case l.state == StateFailed && l.relaunchable:
		l.relaunchable = false
		l.cancelRequested = false
		l.cancelObserved = false
	default:
		return core.ErrAlreadyStarted
	}

	l.state = StateRunning

	return nil
}

// RequestCancel records a cancellation request. It returns false when
// the executable is not running, i.e. there is nothing to cancel.
func (l *Lifecycle) RequestCancel() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateRunning {
		return false
	}

	l.cancelRequested = true

	return true
}

func (l *Lifecycle) CancelRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.cancelRequested
}

// ObserveCancel records that the running worker saw the cancellation
// request and stopped because of it.
func (l *Lifecycle) ObserveCancel() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateRunning && l.cancelRequested {
		l.cancelObserved = true
	}
}

// End moves a running executable into its terminal state. An observed
// cancellation request turns a successful end into Cancelled.
// It returns the resulting state and whether this call performed the transition.
func (l *Lifecycle) End(err error) (State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateRunning {
		return l.state, false
	}

	switch {
	case err != nil:
		l.state = StateFailed
		l.relaunchable = core.IsRelaunchable(err)
	case l.cancelRequested && l.cancelObserved:
		l.state = StateCancelled
	default:
		l.state = StateCompleted
	}

	return l.state, true
}
