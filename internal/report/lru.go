package report

import "sync"

// LRUStore is an in-memory LRU cache that delegates to a backing Store on miss.
// Cached runs keep their live output; it is closed when the run is evicted.
type LRUStore struct {
	mu   sync.Mutex
	cap  int
	back Store

	// Doubly-linked list for LRU ordering (most recent at head).
	head, tail *lruEntry
	items      map[string]*lruEntry
}

type lruEntry struct {
	key  string
	run  *Run
	prev *lruEntry
	next *lruEntry
}

// NewLRUStore creates an LRU cache with the given capacity that delegates
// to back on cache misses. Capacity must be >= 1.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		items: make(map[string]*lruEntry, cap),
	}
}

// Save writes the run to the LRU cache and delegates to the backing store.
func (s *LRUStore) Save(run *Run) error {
	var evicted []*Run

	s.mu.Lock()
	if e, ok := s.items[run.ID]; ok {
		if e.run != run {
			evicted = append(evicted, e.run)
		}
		e.run = run
		s.moveToFront(e)
	} else {
		e := &lruEntry{key: run.ID, run: run}
		s.items[run.ID] = e
		s.pushFront(e)
		for len(s.items) > s.cap {
			evicted = append(evicted, s.evict())
		}
	}
	s.mu.Unlock()

	release(evicted)
	return s.back.Save(run)
}

// Load checks the LRU cache first. On miss, loads from the backing store.
// Runs loaded from the backing store carry no output and are not cached.
func (s *LRUStore) Load(runID string) (*Run, error) {
	s.mu.Lock()
	if e, ok := s.items[runID]; ok {
		s.moveToFront(e)
		r := e.run
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	return s.back.Load(runID)
}

// Len returns the number of cached runs.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close releases the output of every cached run and empties the cache.
func (s *LRUStore) Close() error {
	s.mu.Lock()
	var runs []*Run
	for e := s.head; e != nil; e = e.next {
		runs = append(runs, e.run)
	}
	s.head, s.tail = nil, nil
	s.items = make(map[string]*lruEntry, s.cap)
	s.mu.Unlock()

	return release(runs)
}

// release closes the output of runs dropped from the cache.
func release(runs []*Run) error {
	var first error
	for _, r := range runs {
		if r.Output == nil {
			continue
		}
		if err := r.Output.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *LRUStore) pushFront(e *lruEntry) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

func (s *LRUStore) moveToFront(e *lruEntry) {
	if s.head == e {
		return
	}
	s.remove(e)
	s.pushFront(e)
}

func (s *LRUStore) remove(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (s *LRUStore) evict() *Run {
	e := s.tail
	s.remove(e)
	delete(s.items, e.key)
	return e.run
}
