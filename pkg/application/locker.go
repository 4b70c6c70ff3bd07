package application

import "sync"

// accountLocker serializes operations on the same account while letting different accounts run concurrently.
// Entries are removed once nobody holds or waits for them.
type accountLocker struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sync.Mutex
	refs int
}

func newAccountLocker() *accountLocker {
	return &accountLocker{
		locks: make(map[string]*accountLock),
	}
}

// Lock blocks until the lock for the given account is acquired. The returned func releases it.
func (l *accountLocker) Lock(id string) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &accountLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()

	return func() {
		lock.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// size returns the amount of accounts currently locked or waited for.
func (l *accountLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
