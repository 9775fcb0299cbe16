package sink

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/google/uuid"
)

// FilePrefix starts the name of every spool file.
const FilePrefix = "gitrun-"

var tracked = struct {
	sync.Mutex
	paths map[string]struct{}
}{paths: make(map[string]struct{})}

func track(path string) {
	tracked.Lock()
	tracked.paths[path] = struct{}{}
	tracked.Unlock()
}

func untrack(path string) {
	tracked.Lock()
	delete(tracked.paths, path)
	tracked.Unlock()
}

// Name returns a spool file name for stream. Names carry a random UUID, so
// concurrent sessions never collide.
func Name(stream string) string {
	return FilePrefix + uuid.NewString() + "." + stream
}

// Outstanding returns the number of spool files not closed yet.
func Outstanding() int {
	tracked.Lock()
	defer tracked.Unlock()
	return len(tracked.paths)
}

// Sweep removes every spool file that has not been closed. It is the
// shutdown safety net; sinks are expected to be closed by their owners.
// Sweep returns the number of files removed.
func Sweep() (int, error) {
	tracked.Lock()
	defer tracked.Unlock()

	var errs []error
	n := 0
	for path := range tracked.paths {
		err := os.Remove(path)
		switch {
		case err == nil:
			n++
		case !errors.Is(err, fs.ErrNotExist):
			errs = append(errs, err)
			continue
		}
		delete(tracked.paths, path)
	}
	return n, errors.Join(errs...)
}
