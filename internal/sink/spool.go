package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// spoolBufferSize bounds how much output sits in memory before it reaches
// the spool file.
const spoolBufferSize = 32 << 10

// Spool streams output to a uniquely named temporary file. The file is
// removed by Close, or by Sweep at shutdown if Close was never called.
type Spool struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
	size int64

	finalized bool
	closed    bool
}

// NewSpool creates an empty spool file for stream in dir. An empty dir
// means os.TempDir().
func NewSpool(dir, stream string) (*Spool, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, Name(stream))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating spool file: %w", err)
	}
	track(path)
	return &Spool{
		path: path,
		f:    f,
		w:    bufio.NewWriterSize(f, spoolBufferSize),
	}, nil
}

func (s *Spool) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return 0, ErrClosed
	case s.finalized:
		return 0, ErrFinalized
	}
	n, err := s.w.Write(p)
	s.size += int64(n)
	return n, err
}

// Finalize flushes pending bytes and releases the write handle. The file
// itself stays until Close.
func (s *Spool) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized || s.closed {
		return nil
	}
	s.finalized = true
	err := s.w.Flush()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f = nil
	return err
}

// flushLocked makes every written byte visible to readers of the file.
func (s *Spool) flushLocked() error {
	if s.finalized {
		return nil
	}
	return s.w.Flush()
}

// Size implements Sink.
func (s *Spool) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Text implements Sink. A spool has no cap of its own.
func (s *Spool) Text(max int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if err := checkCap(s.size, max, 0); err != nil {
		return "", err
	}
	if err := s.flushLocked(); err != nil {
		return "", fmt.Errorf("flushing spool file: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("reading spool file: %w", err)
	}
	return string(data), nil
}

// Open implements Sink.
func (s *Spool) Open() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.flushLocked(); err != nil {
		return nil, fmt.Errorf("flushing spool file: %w", err)
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening spool file: %w", err)
	}
	return f, nil
}

// Path implements Sink.
func (s *Spool) Path() string {
	return s.path
}

// Close implements Sink.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.f != nil {
		err = s.f.Close()
		s.f = nil
	}
	if rerr := os.Remove(s.path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
		err = errors.Join(err, fmt.Errorf("removing spool file: %w", rerr))
	}
	untrack(s.path)
	return err
}
