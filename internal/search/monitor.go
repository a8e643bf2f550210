package search

import (
	"sync"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
)

// ErrMonitorClosed is returned when reading from a monitor that is closed or
// scheduled to close.
var ErrMonitorClosed = errors.New(errors.ErrCodeReaderClosed, "reader monitor is closed", nil)

type monitorOwner interface {
	removeMonitor(m *ReaderMonitor)
}

// ReaderMonitor reference-counts readers of one snapshot and defers closing
// it until the last reader is done.
type ReaderMonitor struct {
	owner    monitorOwner
	snapshot Snapshot

	// count, closed and doClose change together under mu.
	mu      sync.Mutex
	count   int
	closed  bool
	doClose bool
}

func newReaderMonitor(owner monitorOwner, snapshot Snapshot) *ReaderMonitor {
	return &ReaderMonitor{owner: owner, snapshot: snapshot}
}

// Snapshot returns the pinned view. Only valid between BeginReading and EndReading.
func (m *ReaderMonitor) Snapshot() Snapshot { return m.snapshot }

// BeginReading registers a reader. It fails once a close was requested.
func (m *ReaderMonitor) BeginReading() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.doClose {
		return ErrMonitorClosed
	}
	m.count++
	return nil
}

// EndReading unregisters a reader. The last reader of a retiring monitor
// closes it and detaches it from its owner.
func (m *ReaderMonitor) EndReading() error {
	m.mu.Lock()
	m.count--
	last := m.count <= 0 && m.doClose
	m.mu.Unlock()

	if !last {
		return nil
	}
	err := m.Close()
	if m.owner != nil {
		m.owner.removeMonitor(m)
	}
	return err
}

// CloseWhenPossible forbids new readers and closes the monitor if none are
// active. It reports whether the monitor is closed on return.
func (m *ReaderMonitor) CloseWhenPossible() (bool, error) {
	m.mu.Lock()
	m.doClose = true
	idle := m.count <= 0
	m.mu.Unlock()

	if !idle {
		return false, nil
	}
	return true, m.Close()
}

// Close releases the snapshot. Only the first call does any work.
func (m *ReaderMonitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.doClose = true
	m.mu.Unlock()

	if m.snapshot == nil {
		return nil
	}
	return m.snapshot.Close()
}

// IsClosed reports whether Close has run.
func (m *ReaderMonitor) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ReadingCount returns the number of active readers.
func (m *ReaderMonitor) ReadingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
