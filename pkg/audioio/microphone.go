package audioio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrAcquire wraps failures to open or start the shared input.
var ErrAcquire = errors.New("audioio: microphone acquisition failed")

// Opener returns the Source a Microphone should start. It is called each
// time the first lease is taken after the input was idle.
type Opener func(ctx context.Context) (Source, error)

// Shared returns an Opener that always hands out src.
func Shared(src Source) Opener {
	return func(context.Context) (Source, error) { return src, nil }
}

// Microphone hands out leases on a single input. The first lease starts
// the source and the last release stops it, so at most one acquisition is
// ever outstanding no matter how many consumers read audio.
type Microphone struct {
	open   Opener
	logger *slog.Logger

	mu     sync.Mutex
	src    Source
	cancel context.CancelFunc
	leases map[uint64]*Lease
	nextID uint64

	opens atomic.Int64
}

// Lease is one consumer's hold on the microphone.
type Lease struct {
	id  uint64
	mic *Microphone
	ch  chan AudioChunk

	closed   bool // guarded by mic.mu
	released bool // guarded by mic.mu
}

// NewMicrophone creates an idle microphone.
func NewMicrophone(open Opener, logger *slog.Logger) *Microphone {
	if logger == nil {
		logger = slog.Default()
	}
	return &Microphone{
		open:   open,
		logger: logger.With("component", "audioio.microphone"),
		leases: make(map[uint64]*Lease),
	}
}

// Acquire takes a lease, starting the input if nobody else holds one.
// The returned error wraps ErrAcquire and the cause.
func (m *Microphone) Acquire(ctx context.Context) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.src == nil {
		if m.open == nil {
			return nil, fmt.Errorf("%w: no input configured", ErrAcquire)
		}
		src, err := m.open(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
		}
		runCtx, cancel := context.WithCancel(context.Background())
		if err := src.Start(runCtx); err != nil {
			cancel()
			return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
		}
		m.src = src
		m.cancel = cancel
		m.opens.Add(1)
		go m.pump(src, src.Stream())
		m.logger.Debug("microphone opened", "backend", src.Name())
	}

	m.nextID++
	l := &Lease{id: m.nextID, mic: m, ch: make(chan AudioChunk, 32)}
	m.leases[l.id] = l
	return l, nil
}

// pump fans chunks out to every lease. A slow lease drops chunks rather
// than holding up the others.
func (m *Microphone) pump(src Source, in <-chan AudioChunk) {
	for chunk := range in {
		m.mu.Lock()
		for _, l := range m.leases {
			if l.closed {
				continue
			}
			select {
			case l.ch <- chunk:
			default:
			}
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.src != src {
		return
	}
	// The input ended on its own. Current leases see a closed channel and
	// the next Acquire reopens.
	m.logger.Warn("microphone input ended unexpectedly")
	for _, l := range m.leases {
		if !l.closed {
			l.closed = true
			close(l.ch)
		}
	}
	m.cancel()
	m.src = nil
	m.cancel = nil
}

func (m *Microphone) release(l *Lease) {
	m.mu.Lock()
	if l.released {
		m.mu.Unlock()
		return
	}
	l.released = true
	delete(m.leases, l.id)
	if !l.closed {
		l.closed = true
		close(l.ch)
	}

	var src Source
	if len(m.leases) == 0 && m.src != nil {
		src = m.src
		m.cancel()
		m.src = nil
		m.cancel = nil
	}
	m.mu.Unlock()

	if src != nil {
		if err := src.Stop(); err != nil {
			m.logger.Warn("microphone stop failed", "error", err)
		}
		m.logger.Debug("microphone closed")
	}
}

// Refs returns the number of outstanding leases.
func (m *Microphone) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leases)
}

// Active reports whether the input is currently open.
func (m *Microphone) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src != nil
}

// Opens returns how many times the input has been opened.
func (m *Microphone) Opens() int {
	return int(m.opens.Load())
}

// Chunks returns the lease's audio. The channel is closed on Release or
// when the input ends.
func (l *Lease) Chunks() <-chan AudioChunk {
	return l.ch
}

// Release gives the lease back. Safe to call more than once.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.mic.release(l)
}
