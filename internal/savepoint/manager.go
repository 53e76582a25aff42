// Package savepoint writes crash-recovery snapshots in the background and
// finds them again when a form is reopened.
//
// Savepoints are disposable. The instance file is authoritative; a savepoint
// only carries edits made since the instance was last saved by the user.
package savepoint

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/formwalk/internal/instance"
	"github.com/roach88/formwalk/internal/ir"
)

// ErrClosed is returned when scheduling on a closed Manager.
var ErrClosed = errors.New("savepoint: manager closed")

// Job is one savepoint write. Data must be a detached snapshot; the worker
// reads it concurrently with the owner of the live model.
type Job struct {
	Path  string
	Index ir.FormIndex
	Data  *ir.InstanceData
}

type indexJob struct {
	path  string
	index ir.FormIndex
}

// Stats counts what happened to scheduled writes.
type Stats struct {
	Scheduled  int64
	Superseded int64
	Completed  int64
	Failed     int64
	Cancelled  int64
}

// WriteFunc persists a savepoint document.
type WriteFunc func(path string, data *ir.InstanceData, index ir.FormIndex) error

// Option configures a Manager.
type Option func(*Manager)

// WithMinInterval throttles background writes to at most one per interval.
// Saves scheduled while waiting coalesce into the next write.
func WithMinInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithWriter replaces the document writer.
func WithWriter(w WriteFunc) Option {
	return func(m *Manager) { m.write = w }
}

// WithErrorHandler is called, from the worker goroutine, with every
// *ir.SavepointWriteError.
func WithErrorHandler(fn func(error)) Option {
	return func(m *Manager) { m.onError = fn }
}

// Manager coalesces savepoint writes onto one background worker. At most
// one write is in flight and at most one is pending; scheduling replaces
// the pending write.
type Manager struct {
	mu           sync.Mutex
	pending      *Job
	pendingIndex *indexJob
	writing      bool
	closed       bool
	idle         chan struct{} // closed when nothing is pending or writing
	signal       chan struct{} // buffered, size 1
	stats        Stats

	// writeMu is held for the duration of each write so Discard can wait
	// for an in-flight write before deleting its file.
	writeMu sync.Mutex

	limiter *rate.Limiter
	write   WriteFunc
	onError func(error)
}

// New returns a Manager. Call Run to start the worker.
func New(opts ...Option) *Manager {
	m := &Manager{
		signal: make(chan struct{}, 1),
		write:  writeDocument,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func writeDocument(path string, data *ir.InstanceData, index ir.FormIndex) error {
	return instance.Write(path, data, &index)
}

// Schedule queues a write without blocking. A write still pending is
// superseded.
func (m *Manager) Schedule(job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.pending != nil {
		m.stats.Superseded++
	}
	m.pending = &job
	m.stats.Scheduled++
	m.wakeLocked()
	return nil
}

// RecordLastVisitedIndex queues a write of just the position to path.
func (m *Manager) RecordLastVisitedIndex(path string, index ir.FormIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.pendingIndex != nil {
		m.stats.Superseded++
	}
	m.pendingIndex = &indexJob{path: path, index: index}
	m.stats.Scheduled++
	m.wakeLocked()
	return nil
}

func (m *Manager) wakeLocked() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// CancelPending drops queued writes. A write already started completes.
func (m *Manager) CancelPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked("")
}

func (m *Manager) cancelLocked(path string) {
	if m.pending != nil && (path == "" || m.pending.Path == path) {
		m.pending = nil
		m.stats.Cancelled++
	}
	if m.pendingIndex != nil && (path == "" || m.pendingIndex.path == path) {
		m.pendingIndex = nil
		m.stats.Cancelled++
	}
	m.notifyIdleLocked()
}

// Discard drops queued writes for paths, waits for an in-flight write to
// finish, then removes the files.
func (m *Manager) Discard(paths ...string) error {
	m.mu.Lock()
	for _, p := range paths {
		m.cancelLocked(p)
	}
	m.mu.Unlock()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	var errs []error
	for _, p := range paths {
		if err := instance.Remove(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run processes writes until ctx is cancelled or the Manager is closed.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-m.signal:
			if !ok {
				return nil
			}
		}
		for m.hasWork() {
			if m.limiter != nil {
				if err := m.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			m.runOne()
		}
	}
}

func (m *Manager) hasWork() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil || m.pendingIndex != nil
}

func (m *Manager) runOne() {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	job, ij := m.pending, m.pendingIndex
	m.pending, m.pendingIndex = nil, nil
	m.writing = job != nil || ij != nil
	m.mu.Unlock()

	if job != nil {
		m.finish(job.Path, m.write(job.Path, job.Data, job.Index))
	}
	if ij != nil {
		m.finish(ij.path, instance.WriteFileAtomic(ij.path, []byte(ij.index.String()+"\n"), 0o644))
	}

	m.mu.Lock()
	m.writing = false
	m.notifyIdleLocked()
	m.mu.Unlock()
}

func (m *Manager) finish(path string, err error) {
	m.mu.Lock()
	if err != nil {
		m.stats.Failed++
	} else {
		m.stats.Completed++
	}
	m.mu.Unlock()

	if err == nil {
		slog.Debug("savepoint written", "path", path)
		return
	}
	werr := &ir.SavepointWriteError{Path: path, Err: err}
	slog.Warn("savepoint write failed", "path", path, "error", err)
	if m.onError != nil {
		m.onError(werr)
	}
}

func (m *Manager) notifyIdleLocked() {
	if m.pending == nil && m.pendingIndex == nil && !m.writing && m.idle != nil {
		close(m.idle)
		m.idle = nil
	}
}

// Flush waits until every queued write has been attempted. It requires a
// running worker.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	if m.pending == nil && m.pendingIndex == nil && !m.writing {
		m.mu.Unlock()
		return nil
	}
	if m.idle == nil {
		m.idle = make(chan struct{})
	}
	idle := m.idle
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-idle:
		return nil
	}
}

// Close stops accepting writes and cancels queued ones. Run returns once
// an in-flight write finishes.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.cancelLocked("")
	close(m.signal)
}

// Stats returns a copy of the counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
