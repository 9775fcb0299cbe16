package report

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/deixis/gitrun/internal/runner"
)

func newRun(t *testing.T, argv ...string) *Run {
	t.Helper()
	r := &runner.Runner{SpoolDir: t.TempDir(), PollInterval: 10 * time.Millisecond}
	res, err := r.Run(context.Background(), ".", argv, runner.Spooled())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return NewRun(res)
}

// memStore is a trivial backing store for LRU tests.
type memStore map[string]*Run

func (m memStore) Save(run *Run) error {
	cp := *run
	cp.Output = nil
	m[run.ID] = &cp
	return nil
}

func (m memStore) Load(id string) (*Run, error) {
	r, ok := m[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

func TestNewRun(t *testing.T) {
	run := newRun(t, "sh", "-c", "printf abc; printf de >&2; exit 2")
	defer run.Output.Close()

	if run.ID == "" {
		t.Error("ID is empty")
	}
	if run.ExitCode != 2 || run.Succeeded {
		t.Errorf("ExitCode = %d Succeeded = %v, want 2 false", run.ExitCode, run.Succeeded)
	}
	if run.FailureKind != "" {
		t.Errorf("FailureKind = %q, want empty", run.FailureKind)
	}
	if run.StdoutBytes != 3 || run.StderrBytes != 2 {
		t.Errorf("sizes = %d/%d, want 3/2", run.StdoutBytes, run.StderrBytes)
	}

	s, err := run.Stream("stderr")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if text, _ := s.Text(0); text != "de" {
		t.Errorf("stderr = %q, want de", text)
	}
	if _, err := run.Stream("stdin"); err == nil {
		t.Error("Stream(stdin) succeeded")
	}
}

func TestNewRun_LaunchFailure(t *testing.T) {
	run := newRun(t, "nonexistent-binary-xyz")
	defer run.Output.Close()
	if run.FailureKind != "launch" {
		t.Errorf("FailureKind = %q, want launch", run.FailureKind)
	}
	if run.Failure == "" {
		t.Error("Failure is empty")
	}
}

func TestLRUStore_EvictionClosesOutput(t *testing.T) {
	back := memStore{}
	store := NewLRUStore(2, back)

	a := newRun(t, "echo", "a")
	b := newRun(t, "echo", "b")
	c := newRun(t, "echo", "c")
	pathA := a.Output.Stdout().Path()

	for _, r := range []*Run{a, b, c} {
		if err := store.Save(r); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if store.Len() != 2 {
		t.Errorf("Len = %d, want 2", store.Len())
	}
	if _, err := os.Stat(pathA); !os.IsNotExist(err) {
		t.Errorf("evicted run's spool file still exists")
	}

	// The evicted run is still known to the backing store, without output.
	got, err := store.Load(a.ID)
	if err != nil {
		t.Fatalf("Load(evicted): %v", err)
	}
	if _, err := got.Stream("stdout"); !errors.Is(err, ErrNoOutput) {
		t.Errorf("Stream on evicted run err = %v, want ErrNoOutput", err)
	}

	got, err = store.Load(c.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s, _ := got.Stream("stdout")
	if text, _ := s.Text(0); text != "c\n" {
		t.Errorf("stdout = %q, want c", text)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len after Close = %d, want 0", store.Len())
	}
}

func TestLRUStore_LoadPromotes(t *testing.T) {
	store := NewLRUStore(2, memStore{})
	a := newRun(t, "echo", "a")
	b := newRun(t, "echo", "b")
	c := newRun(t, "echo", "c")
	defer store.Close()

	_ = store.Save(a)
	_ = store.Save(b)
	if _, err := store.Load(a.ID); err != nil { // a is now most recent
		t.Fatal(err)
	}
	_ = store.Save(c) // evicts b

	if got, _ := store.Load(a.ID); got.Output == nil {
		t.Error("a was evicted, want b evicted")
	}
	if got, _ := store.Load(b.ID); got.Output != nil {
		t.Error("b still holds output, want evicted")
	}
}

func TestDiskStore_RoundTrip(t *testing.T) {
	store := NewDiskStore()
	defer store.Remove()

	run := newRun(t, "echo", "disk")
	defer run.Output.Close()
	if err := store.Save(run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(run.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ID != run.ID || got.ExitCode != 0 || got.StdoutBytes != 5 {
		t.Errorf("Load = %+v", got)
	}
	if got.Output != nil {
		t.Error("Output restored from disk, want nil")
	}
	if len(got.Argv) != 2 || got.Argv[1] != "disk" {
		t.Errorf("Argv = %v", got.Argv)
	}
}

func TestDiskStore_RejectsPathIDs(t *testing.T) {
	store := NewDiskStore()
	defer store.Remove()
	if _, err := store.Load("../etc/passwd"); err == nil {
		t.Error("Load accepted a path-like run id")
	}
}
