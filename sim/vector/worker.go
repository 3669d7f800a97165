package vector

import (
	"fmt"

	"github.com/hcle-sim/hcle/sim"
)

type requestKind int

const (
	requestStep requestKind = iota
	requestReset
	requestControl
)

type request struct {
	kind   requestKind
	action int
	seed   *int64
	fn     func(sim.Unit) ([]uint8, error)
}

// Result is the outcome of one Worker request. Observation aliases the
// Worker's private staging buffer and is valid until the next Submit.
type Result struct {
	Observation []uint8
	Reward      float32
	Done        bool
	Err         error
}

// Worker drives exactly one Unit on its own goroutine.
//
// At most one request is outstanding at a time. Submit* methods return
// immediately; Collect blocks the caller (not sibling Workers) until the
// outstanding request finishes.
//
// Thread-safety: NOT thread-safe. All methods must be called from the
// coordinating goroutine; the Unit itself is only touched by the Worker's goroutine.
type Worker struct {
	index    int
	unit     sim.Unit
	requests chan request
	results  chan Result
	exited   chan struct{}

	staging       []uint8
	outstanding   bool
	pendingAction int
	last          Result
	closed        bool
}

// NewWorker starts a Worker goroutine owning unit.
func NewWorker(index int, unit sim.Unit) *Worker {
	w := &Worker{
		index:    index,
		unit:     unit,
		requests: make(chan request, 1),
		results:  make(chan Result, 1),
		exited:   make(chan struct{}),
	}
	go w.loop()
	return w
}

// Index returns the Worker's position in the pipeline.
func (w *Worker) Index() int { return w.index }

// Outstanding reports whether a request has been submitted but not collected.
func (w *Worker) Outstanding() bool { return w.outstanding }

// PendingAction returns the action of the most recent step submission.
func (w *Worker) PendingAction() int { return w.pendingAction }

// Last returns the most recently collected result.
func (w *Worker) Last() Result { return w.last }

// Submit starts Unit.Step(action). Returns ErrWorkerBusy if a request is
// outstanding and ErrClosed after Close.
func (w *Worker) Submit(action int) error {
	if err := w.ready(); err != nil {
		return err
	}
	w.pendingAction = action
	w.send(request{kind: requestStep, action: action})
	return nil
}

// SubmitReset starts Unit.Reset(), seeding the Unit first if seed is non-nil
// and the Unit implements sim.Seeder.
func (w *Worker) SubmitReset(seed *int64) error {
	if err := w.ready(); err != nil {
		return err
	}
	w.send(request{kind: requestReset, seed: seed})
	return nil
}

// SubmitControl runs fn against the Unit on the Worker's goroutine. A non-nil
// observation returned by fn is staged like a step result.
func (w *Worker) SubmitControl(fn func(sim.Unit) ([]uint8, error)) error {
	if err := w.ready(); err != nil {
		return err
	}
	w.send(request{kind: requestControl, fn: fn})
	return nil
}

// Collect blocks until the outstanding request completes and returns its
// result. With nothing outstanding it returns the last result immediately.
func (w *Worker) Collect() Result {
	if !w.outstanding {
		return w.last
	}
	w.last = <-w.results
	w.outstanding = false
	return w.last
}

// Close waits for any outstanding request, stops the goroutine and closes the
// Unit. Calling Close again is a no-op.
func (w *Worker) Close() error {
	if w.closed {
		return nil
	}
	w.Collect()
	close(w.requests)
	<-w.exited
	w.closed = true
	if err := w.unit.Close(); err != nil {
		return fmt.Errorf("closing unit %d: %w", w.index, err)
	}
	return nil
}

func (w *Worker) ready() error {
	if w.closed {
		return sim.ErrClosed
	}
	if w.outstanding {
		return fmt.Errorf("worker %d: %w", w.index, sim.ErrWorkerBusy)
	}
	return nil
}

// send never blocks: the channel has capacity 1 and at most one request is outstanding.
func (w *Worker) send(req request) {
	w.outstanding = true
	w.requests <- req
}

func (w *Worker) loop() {
	defer close(w.exited)
	for req := range w.requests {
		w.results <- w.execute(req)
	}
}

// execute runs on the Worker goroutine. Unit panics are reported as errors so
// a faulty backend fails the batch instead of the process.
func (w *Worker) execute(req request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("unit panicked: %v", r)}
		}
	}()

	var obs []uint8
	switch req.kind {
	case requestStep:
		obs, res.Reward, res.Done, res.Err = w.unit.Step(req.action)
	case requestReset:
		if s, ok := w.unit.(sim.Seeder); ok && req.seed != nil {
			s.Seed(*req.seed)
		}
		obs, res.Err = w.unit.Reset()
	case requestControl:
		obs, res.Err = req.fn(w.unit)
	}
	if res.Err != nil || obs == nil {
		return res
	}
	if cap(w.staging) < len(obs) {
		w.staging = make([]uint8, len(obs))
	}
	w.staging = w.staging[:len(obs)]
	copy(w.staging, obs)
	res.Observation = w.staging
	return res
}
