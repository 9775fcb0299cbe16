package runner

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// outcome is the terminal state of a supervised session.
type outcome int

const (
	completed outcome = iota
	timedOut
	canceled
)

func (o outcome) String() string {
	switch o {
	case completed:
		return "completed"
	case timedOut:
		return "timed out"
	case canceled:
		return "canceled"
	}
	return "unknown"
}

// supervisor races a session against its deadline. It is the only
// component that kills a process.
type supervisor struct {
	start    time.Time
	timeout  time.Duration // 0 means no deadline
	interval time.Duration
	kill     func() error
	log      zerolog.Logger
}

// watch blocks until done is closed, the deadline passes, or ctx ends.
// Without a deadline or a cancelable context it simply waits for done.
func (s *supervisor) watch(ctx context.Context, done <-chan struct{}) outcome {
	if s.timeout <= 0 && ctx.Done() == nil {
		<-done
		return completed
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return completed
		case <-ctx.Done():
			s.terminate(canceled)
			return canceled
		case <-ticker.C:
			if s.timeout <= 0 || time.Since(s.start) < s.timeout {
				continue
			}
			select {
			case <-done:
				return completed
			default:
			}
			s.terminate(timedOut)
			return timedOut
		}
	}
}

func (s *supervisor) terminate(why outcome) {
	s.log.Warn().
		Stringer("reason", why).
		Dur("timeout", s.timeout).
		Dur("elapsed", time.Since(s.start)).
		Msg("killing command")
	if err := s.kill(); err != nil {
		s.log.Warn().Err(err).Msg("kill failed")
	}
}
