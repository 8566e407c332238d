package jsrt

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
	"github.com/6over3/jsrt/internal/goid"
)

// job is one scope request for the worker.
type job struct {
	key    abi.ContextRef
	action func() error
	done   chan outcome
}

type outcome struct {
	err      error
	panicked bool
	panicVal any
}

// scheduler runs cross-context work on one worker goroutine per runtime.
// The worker is locked to its OS thread for its whole life, so the engine
// only ever sees one native thread for marshaled work. Requests run in the
// order they were submitted.
type scheduler struct {
	rt     *Runtime
	wake   chan struct{}
	quit   chan struct{}
	stop   sync.Once
	exited chan struct{}
	worker atomic.Int64
	served atomic.Uint64

	mu     sync.Mutex
	queue  []*job
	sealed bool
}

func newScheduler(rt *Runtime) *scheduler {
	s := &scheduler{
		rt:     rt,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	ready := make(chan struct{})
	go s.loop(ready)
	<-ready
	return s
}

func (s *scheduler) loop(ready chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.exited)

	s.worker.Store(goid.Get())
	close(ready)
	for {
		if j := s.next(); j != nil {
			j.done <- s.execute(j)
			s.served.Add(1)
			continue
		}
		select {
		case <-s.wake:
		case <-s.quit:
			return
		}
	}
}

// next pops the oldest queued request, or returns nil.
func (s *scheduler) next() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	j := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return j
}

// queued reports the number of requests waiting for the worker.
func (s *scheduler) queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// seal rejects every queued request and every later submit.
func (s *scheduler) seal() {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.sealed = true
	s.mu.Unlock()
	for _, j := range pending {
		j.done <- outcome{err: errDisposed()}
	}
}

// submit queues a request and blocks until the worker has finished it. A
// panic inside the action is re-raised here, after the worker cleaned up.
func (s *scheduler) submit(key abi.ContextRef, action func() error) error {
	j := &job{key: key, action: action, done: make(chan outcome, 1)}
	s.mu.Lock()
	if s.sealed {
		s.mu.Unlock()
		return errDisposed()
	}
	s.queue = append(s.queue, j)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	out := <-j.done
	if out.panicked {
		panic(out.panicVal)
	}
	return out.err
}

// execute runs a job on the worker: take the lock, make the context
// current, run the action, and always clear the current context again.
func (s *scheduler) execute(j *job) (out outcome) {
	g := goid.Get()
	lock := s.rt.lock
	if err := lock.acquire(g, j.key); err != nil {
		return outcome{err: err}
	}
	defer lock.release(g)

	if !j.key.IsValid() {
		return s.guard(j.action)
	}

	if code := s.rt.s.SetCurrentContext(j.key); code != abi.NoError {
		return outcome{err: codeError(code)}
	}
	if ce := s.rt.log.Check(zap.DebugLevel, "scope entered"); ce != nil {
		ce.Write(zap.Stringer("context", j.key), zap.Int("waiting", lock.waiting()))
	}

	out = s.guard(j.action)
	if code := s.rt.s.SetCurrentContext(abi.InvalidContext); code != abi.NoError {
		out.err = multierr.Append(out.err, codeError(code))
	}
	return out
}

// guard runs action, capturing a panic instead of unwinding the worker.
func (s *scheduler) guard(action func() error) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{panicked: true, panicVal: r}
		}
	}()
	return outcome{err: action()}
}

// shutdown stops the worker. Called from the worker itself, the loop exits
// once the current job returns.
func (s *scheduler) shutdown() {
	s.seal()
	s.stop.Do(func() { close(s.quit) })
	if !s.onWorker() {
		<-s.exited
	}
}

func (s *scheduler) onWorker() bool {
	return s.worker.Load() == goid.Get()
}
