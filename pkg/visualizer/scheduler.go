package visualizer

import (
	"sync"
	"time"
)

// DefaultFrameRate is the display refresh rate TickerScheduler targets.
const DefaultFrameRate = 60

// FrameCallback draws one frame. t is the frame timestamp.
type FrameCallback func(t time.Time)

// Handle identifies a requested frame.
type Handle uint64

// FrameScheduler runs callbacks on the next display refresh. A callback
// runs at most once; to animate, request again from inside it.
type FrameScheduler interface {
	RequestFrame(cb FrameCallback) Handle
	CancelFrame(h Handle)
}

// frameQueue is the pending set shared by both schedulers.
type frameQueue struct {
	mu      sync.Mutex
	next    Handle
	pending map[Handle]FrameCallback
	order   []Handle
}

func (q *frameQueue) request(cb FrameCallback) Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == nil {
		q.pending = make(map[Handle]FrameCallback)
	}
	q.next++
	q.pending[q.next] = cb
	q.order = append(q.order, q.next)
	return q.next
}

func (q *frameQueue) cancel(h Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, h)
}

// run calls every callback requested before run started, in request order.
func (q *frameQueue) run(t time.Time) int {
	q.mu.Lock()
	order := q.order
	q.order = nil
	cbs := make([]FrameCallback, 0, len(order))
	for _, h := range order {
		if cb, ok := q.pending[h]; ok {
			cbs = append(cbs, cb)
			delete(q.pending, h)
		}
	}
	q.mu.Unlock()

	for _, cb := range cbs {
		cb(t)
	}
	return len(cbs)
}

func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// TickerScheduler fires pending frames on a fixed-rate ticker.
type TickerScheduler struct {
	q        frameQueue
	interval time.Duration

	once    sync.Once
	started bool // set under once

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewTickerScheduler creates a scheduler ticking fps times per second.
// The ticker starts with the first request.
func NewTickerScheduler(fps int) *TickerScheduler {
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	return &TickerScheduler{
		interval: time.Second / time.Duration(fps),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// RequestFrame implements FrameScheduler.
func (s *TickerScheduler) RequestFrame(cb FrameCallback) Handle {
	s.once.Do(func() {
		s.started = true
		go s.loop()
	})
	return s.q.request(cb)
}

// CancelFrame implements FrameScheduler.
func (s *TickerScheduler) CancelFrame(h Handle) { s.q.cancel(h) }

func (s *TickerScheduler) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case t := <-ticker.C:
			s.q.run(t)
		}
	}
}

// Close stops the ticker. Pending frames never run.
func (s *TickerScheduler) Close() error {
	s.once.Do(func() {})
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started {
		<-s.done
	}
	return nil
}

// ManualScheduler runs frames only when Step is called.
type ManualScheduler struct {
	q frameQueue
}

// NewManualScheduler creates a manual scheduler.
func NewManualScheduler() *ManualScheduler { return &ManualScheduler{} }

// RequestFrame implements FrameScheduler.
func (s *ManualScheduler) RequestFrame(cb FrameCallback) Handle { return s.q.request(cb) }

// CancelFrame implements FrameScheduler.
func (s *ManualScheduler) CancelFrame(h Handle) { s.q.cancel(h) }

// Step runs the frames pending now and returns how many ran.
func (s *ManualScheduler) Step(t time.Time) int { return s.q.run(t) }

// Pending returns the number of frames waiting to run.
func (s *ManualScheduler) Pending() int { return s.q.len() }
