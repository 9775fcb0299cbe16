package sink

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Memory accumulates output in memory. Its limit is not enforced during
// capture; it is the default cap for Text. An overflow Memory instead moves
// everything to a Spool as soon as the limit is passed, so memory stays
// bounded while the full output is still kept.
type Memory struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int64

	overflow bool
	spillDir string
	stream   string
	spill    *Spool

	finalized bool
	closed    bool
}

// NewMemory returns an in-memory sink whose Text cap defaults to limit.
// A limit of zero means no cap.
func NewMemory(limit int64) *Memory {
	return &Memory{limit: limit}
}

// NewOverflow returns an in-memory sink that spills to a spool file in dir
// once more than limit bytes have been written.
func NewOverflow(limit int64, dir, stream string) *Memory {
	return &Memory{
		limit:    limit,
		overflow: limit > 0,
		spillDir: dir,
		stream:   stream,
	}
}

func (m *Memory) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return 0, ErrClosed
	case m.finalized:
		return 0, ErrFinalized
	case m.spill != nil:
		return m.spill.Write(p)
	}

	if m.overflow && int64(m.buf.Len()+len(p)) > m.limit {
		if err := m.spillLocked(); err != nil {
			return 0, err
		}
		return m.spill.Write(p)
	}
	return m.buf.Write(p)
}

// spillLocked moves the buffered bytes to a new spool file.
func (m *Memory) spillLocked() error {
	s, err := NewSpool(m.spillDir, m.stream)
	if err != nil {
		return fmt.Errorf("spilling %s: %w", m.stream, err)
	}
	if _, err := s.Write(m.buf.Bytes()); err != nil {
		_ = s.Close()
		return fmt.Errorf("spilling %s: %w", m.stream, err)
	}
	m.buf = bytes.Buffer{}
	m.spill = s
	return nil
}

// Finalize implements Writer.
func (m *Memory) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return nil
	}
	m.finalized = true
	if m.spill != nil {
		return m.spill.Finalize()
	}
	return nil
}

// Size implements Sink.
func (m *Memory) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spill != nil {
		return m.spill.Size()
	}
	return int64(m.buf.Len())
}

// Text implements Sink.
func (m *Memory) Text(max int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	if m.spill != nil {
		if err := checkCap(m.spill.Size(), max, m.limit); err != nil {
			return "", err
		}
		return m.spill.Text(0)
	}
	if err := checkCap(int64(m.buf.Len()), max, m.limit); err != nil {
		return "", err
	}
	return m.buf.String(), nil
}

// Open implements Sink.
func (m *Memory) Open() (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.spill != nil {
		return m.spill.Open()
	}
	// The buffer is append-only, so the current prefix never changes.
	return io.NopCloser(bytes.NewReader(m.buf.Bytes())), nil
}

// Path implements Sink.
func (m *Memory) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spill != nil {
		return m.spill.Path()
	}
	return ""
}

// Close implements Sink.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.buf = bytes.Buffer{}
	if m.spill != nil {
		return m.spill.Close()
	}
	return nil
}
