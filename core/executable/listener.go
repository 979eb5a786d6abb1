package executable

import (
	"sync"
)

// AsyncResultListener receives the events of an asynchronous invocation.
// Partial results arrive in the order produced by the backend;
// OnAsyncEnd and OnAsyncExitCode are always the last two callbacks.
// Callbacks run on a backend goroutine and must not block on the same console.
type AsyncResultListener interface {
	OnAsyncStart()
	OnPartialResult(v any)
	OnException(err error)
	OnAsyncEnd(cancelled bool)
	OnAsyncExitCode(code int)
}

// ConcurrentAsyncResultListener is a listener shared by several invocations
// that tracks its own liveness independently of any one executable.
type ConcurrentAsyncResultListener interface {
	AsyncResultListener

	// OnRegister is called once for every executable bound to the listener.
	OnRegister()

	// IsCancelled asks every bound executable to stop.
	IsCancelled() bool
}

// ListenerFuncs adapts plain functions to an AsyncResultListener.
// Nil fields are ignored.
type ListenerFuncs struct {
	Start    func()
	Partial  func(v any)
	Error    func(err error)
	End      func(cancelled bool)
	ExitCode func(code int)
}

func (f *ListenerFuncs) OnAsyncStart() {
	if f.Start != nil {
		f.Start()
	}
}

func (f *ListenerFuncs) OnPartialResult(v any) {
	if f.Partial != nil {
		f.Partial(v)
	}
}

func (f *ListenerFuncs) OnException(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f *ListenerFuncs) OnAsyncEnd(cancelled bool) {
	if f.End != nil {
		f.End(cancelled)
	}
}

func (f *ListenerFuncs) OnAsyncExitCode(code int) {
	if f.ExitCode != nil {
		f.ExitCode(code)
	}
}

// ConcurrentListener fans several invocations into one delegate listener.
// The delegate sees a single OnAsyncStart (from the first invocation) and
// a single OnAsyncEnd/OnAsyncExitCode pair (from the last one to end).
type ConcurrentListener struct {
	delegate AsyncResultListener

	mu        sync.Mutex
	refs      int
	ending    int
	ended     int
	started   bool
	cancelled bool
	anyCancel bool
	lastCode  int
}

func NewConcurrentListener(delegate AsyncResultListener) *ConcurrentListener {
	if delegate == nil {
		delegate = new(ListenerFuncs)
	}

	return &ConcurrentListener{delegate: delegate}
}

func (l *ConcurrentListener) OnRegister() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refs++
}

// Cancel marks the listener as cancelled; bound executables observe it
// through IsCancelled.
func (l *ConcurrentListener) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cancelled = true
}

func (l *ConcurrentListener) IsCancelled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.cancelled
}

// OnUnregister releases an executable that failed before dispatching.
func (l *ConcurrentListener) OnUnregister() {
	l.mu.Lock()

	if l.refs > 0 {
		l.refs--
	}

	last := l.refs == 0 && l.ending == 0 && l.ended > 0

	cancelled, exitCode := l.anyCancel, l.lastCode

	l.mu.Unlock()

	if last {
		l.delegate.OnAsyncEnd(cancelled)
		l.delegate.OnAsyncExitCode(exitCode)
	}
}

// Active returns the number of registered invocations that have not ended yet.
func (l *ConcurrentListener) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.refs
}

func (l *ConcurrentListener) OnAsyncStart() {
	l.mu.Lock()
	first := !l.started
	l.started = true
	l.mu.Unlock()

	if first {
		l.delegate.OnAsyncStart()
	}
}

func (l *ConcurrentListener) OnPartialResult(v any) {
	l.delegate.OnPartialResult(v)
}

func (l *ConcurrentListener) OnException(err error) {
	l.delegate.OnException(err)
}

func (l *ConcurrentListener) OnAsyncEnd(cancelled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cancelled {
		l.anyCancel = true
	}

	if l.refs > 0 {
		l.refs--
	}

	// The delegate end is emitted together with the exit code
	// of the last invocation, see OnAsyncExitCode.
	l.ending++
	l.ended++
}

func (l *ConcurrentListener) OnAsyncExitCode(code int) {
	l.mu.Lock()

	if code != 0 {
		l.lastCode = code
	}

	if l.ending > 0 {
		l.ending--
	}

	last := l.refs == 0 && l.ending == 0

	cancelled, exitCode := l.anyCancel, l.lastCode

	l.mu.Unlock()

	if last {
		l.delegate.OnAsyncEnd(cancelled)
		l.delegate.OnAsyncExitCode(exitCode)
	}
}
