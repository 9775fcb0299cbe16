package runner

import (
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/deixis/gitrun/internal/sink"
)

// stream is one output channel of a child process and the sink it drains
// into.
type stream struct {
	name string
	r    io.ReadCloser
	w    sink.Writer

	interrupted atomic.Bool
	err         error // set by copy; read after the drainer is done
}

// copy drains the channel into the sink until EOF, then finalizes the sink.
// A failed sink write does not stop the read loop: the rest of the channel
// is discarded so the child never blocks on a full pipe.
func (s *stream) copy() error {
	defer s.r.Close()

	_, err := io.Copy(s.w, s.r)
	if err != nil && !s.interrupted.Load() {
		_, _ = io.Copy(io.Discard, s.r)
	}
	if ferr := s.w.Finalize(); err == nil {
		err = ferr
	}
	if err == nil || s.interrupted.Load() {
		return nil
	}
	s.err = &DrainError{Stream: s.name, Err: err}
	return s.err
}

// drainer copies every stream on its own goroutine. Both copies are started
// before anything waits on either, so a child writing heavily to one
// channel can never stall behind the other.
type drainer struct {
	streams []*stream
	g       errgroup.Group
	done    chan struct{}
}

func startDrain(streams ...*stream) *drainer {
	d := &drainer{
		streams: streams,
		done:    make(chan struct{}),
	}
	for _, s := range streams {
		d.g.Go(s.copy)
	}
	go func() {
		// Errors are kept per stream; one failing copy never cancels another.
		_ = d.g.Wait()
		close(d.done)
	}()
	return d
}

// interrupt unblocks every copy still waiting on its channel. Bytes already
// captured stay in the sinks.
func (d *drainer) interrupt() {
	for _, s := range d.streams {
		s.interrupted.Store(true)
		_ = s.r.Close()
	}
}

// errs returns the drain failures. It must only be called after done is
// closed.
func (d *drainer) errs() []error {
	var out []error
	for _, s := range d.streams {
		if s.err != nil {
			out = append(out, s.err)
		}
	}
	return out
}
