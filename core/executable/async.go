package executable

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Job is the running half of an asynchronous invocation as seen by the
// worker goroutine of a backend.
type Job struct {
	prog  *AsyncProgram
	token *Token

	mu        sync.Mutex
	interrupt func()
}

// Partial delivers one partial result to the listener.
func (j *Job) Partial(v any) {
	j.prog.listener.OnPartialResult(v)
}

// Cancelled reports whether the invocation was asked to stop, either
// directly or through a shared listener. A true result marks the
// cancellation as observed, so the invocation ends as Cancelled.
func (j *Job) Cancelled() bool {
	if c := j.prog.concurrent; c != nil && c.IsCancelled() && j.prog.RequestCancel() {
		j.token.Cancel()
	}

	if !j.token.Cancelled() {
		return false
	}

	j.prog.ObserveCancel()

	return true
}

// Done is closed when the invocation is cancelled. A worker that stops
// on Done confirms it with Cancelled.
func (j *Job) Done() <-chan struct{} {
	return j.token.Done()
}

// SetInterrupt registers an action that forces the backend to stop,
// e.g. signalling a process. If the invocation is already cancelled
// the action runs immediately.
func (j *Job) SetInterrupt(fn func()) {
	j.mu.Lock()
	j.interrupt = fn
	j.mu.Unlock()

	if fn != nil && j.token.Cancelled() {
		fn()
	}
}

func (j *Job) runInterrupt() {
	j.mu.Lock()
	fn := j.interrupt
	j.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Worker performs the asynchronous part of a command. It returns the exit
// code of the invocation and an error that is reported via OnException.
type Worker func(ctx context.Context, job *Job) (int, error)

// AsyncProgram is an asynchronous, cancellable executable. Execute runs the
// optional preparation step on the caller goroutine, then dispatches the
// worker and returns. The listener receives OnAsyncStart, the partial
// results, OnException on failure, and finally OnAsyncEnd and OnAsyncExitCode.
type AsyncProgram struct {
	Lifecycle

	name string
	opts Options
	open bool
	sync bool

	listener   AsyncResultListener
	concurrent ConcurrentAsyncResultListener
	registered bool

	prepare func(context.Context) error
	work    Worker

	mu    sync.Mutex
	token *Token
	job   *Job
}

func NewAsyncProgram(name string, l AsyncResultListener, work Worker) *AsyncProgram {
	if l == nil {
		l = new(ListenerFuncs)
	}

	p := AsyncProgram{
		name:     name,
		opts:     Options{}.WithDefaults(),
		listener: l,
		work:     work,
		token:    NewToken(),
	}

	if c, ok := l.(ConcurrentAsyncResultListener); ok {
		p.concurrent = c
		p.registered = true
		c.OnRegister()
	}

	return &p
}

func (p *AsyncProgram) WithOptions(opts Options) *AsyncProgram {
	p.opts = opts.WithDefaults()
	return p
}

func (p *AsyncProgram) WithFlags(requiresOpen, requiresSync bool) *AsyncProgram {
	p.open = requiresOpen
	p.sync = requiresSync
	return p
}

// WithPrepare sets a step that runs before dispatching. Its error is
// returned by Execute and no listener callbacks are emitted.
func (p *AsyncProgram) WithPrepare(fn func(context.Context) error) *AsyncProgram {
	p.prepare = fn
	return p
}

func (p *AsyncProgram) Name() string {
	return p.name
}

func (p *AsyncProgram) Execute(ctx context.Context) error {
	if err := p.Begin(); err != nil {
		return err
	}

	p.mu.Lock()
	p.token = NewToken()
	p.job = &Job{prog: p, token: p.token}
	token, job := p.token, p.job
	register := p.concurrent != nil && !p.registered
	p.registered = p.concurrent != nil
	p.mu.Unlock()

	// A relaunch after a failed preparation binds the listener again
	if register {
		p.concurrent.OnRegister()
	}

	if p.prepare != nil {
		if err := p.prepare(ctx); err != nil {
			p.End(err)
			token.Finish()

			if u, ok := p.listener.(interface{ OnUnregister() }); ok {
				p.mu.Lock()
				p.registered = false
				p.mu.Unlock()

				u.OnUnregister()
			}

			return err
		}
	}

	if p.opts.Trace {
		log.WithField("command", p.name).Debug("Dispatching")
	}

	p.listener.OnAsyncStart()

	// The worker outlives the caller's context; it stops on Cancel.
	wctx := context.WithoutCancel(ctx)

	go func() {
		defer token.Finish()

		code, err := p.work(wctx, job)

		p.finish(err, code)
	}()

	return nil
}

func (p *AsyncProgram) finish(err error, code int) {
	state, _ := p.End(err)

	if p.opts.Trace {
		log.WithField("command", p.name).Debugf("Finished: %s (exit code %d)", state, code)
	}

	if err != nil {
		p.listener.OnException(err)
	}

	p.listener.OnAsyncEnd(state == StateCancelled)
	p.listener.OnAsyncExitCode(code)
}

func (p *AsyncProgram) IsAsynchronous() bool {
	return true
}

func (p *AsyncProgram) RequiresOpen() bool {
	return p.open
}

func (p *AsyncProgram) RequiresSync() bool {
	return p.sync
}

func (p *AsyncProgram) IsCancellable() bool {
	return true
}

// Cancel asks the worker to stop and waits for it at most CancelTimeout.
// It is a no-op once the invocation has ended.
func (p *AsyncProgram) Cancel() bool {
	if !p.RequestCancel() {
		return p.State().IsTerminal()
	}

	p.mu.Lock()
	token, job := p.token, p.job
	p.mu.Unlock()

	token.Cancel()

	if job != nil {
		job.runInterrupt()
	}

	ok := token.Wait(p.opts.CancelTimeout)

	if !ok {
		log.WithField("command", p.name).Warnf("Cancellation is not confirmed after %s", p.opts.CancelTimeout)
	}

	return ok
}

// Wait blocks until the worker has delivered its final callbacks.
func (p *AsyncProgram) Wait(ctx context.Context) error {
	p.mu.Lock()
	token := p.token
	p.mu.Unlock()

	select {
	case <-token.Finished():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
