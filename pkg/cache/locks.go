package cache

import "sync"

// threadLocks hands out one mutex per thread guid. Entries are dropped once
// no goroutine holds or waits on them. Every per-thread holder also holds
// all for reading, so exclusive waits out every thread at once.
type threadLocks struct {
	all   sync.RWMutex
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

// lock blocks until the thread's mutex is held and returns its release func.
func (l *threadLocks) lock(threadGUID string) func() {
	l.all.RLock()
	l.mu.Lock()
	tl, ok := l.locks[threadGUID]
	if !ok {
		tl = &threadLock{}
		l.locks[threadGUID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.Lock()
	return func() {
		tl.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, threadGUID)
		}
		l.mu.Unlock()
		l.all.RUnlock()
	}
}

// exclusive blocks until no thread lock is held and keeps new ones out
// until the returned func is called.
func (l *threadLocks) exclusive() func() {
	l.all.Lock()
	return l.all.Unlock
}

func (l *threadLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
