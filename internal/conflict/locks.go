package conflict

import "sync"

// DocLocks is a keyed mutex: at most one holder per document id. One DocLocks
// is shared by every coordinator of a database, so two listeners never
// resolve the same document at once.
//
// Entries are reference counted and removed when the last holder or waiter
// leaves, so the map does not grow with the number of documents seen.
type DocLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

// NewDocLocks creates an empty lock table.
func NewDocLocks() *DocLocks {
	return &DocLocks{locks: make(map[string]*docLock)}
}

// Lock blocks until docID is free and returns the matching unlock function.
// Unlock must be called exactly once.
func (l *DocLocks) Lock(docID string) (unlock func()) {
	l.mu.Lock()
	dl, ok := l.locks[docID]
	if !ok {
		dl = &docLock{}
		l.locks[docID] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			dl.mu.Unlock()

			l.mu.Lock()
			dl.refs--
			if dl.refs == 0 {
				delete(l.locks, docID)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of documents currently locked or waited on.
func (l *DocLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
