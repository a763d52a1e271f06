package service

import (
	"context"
	"sync"
)

// threadLocks serialises work per thread id within this process.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

// threadLock is held while its one-slot channel is full.
type threadLock struct {
	held chan struct{}
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

// lock blocks until id is free or ctx is done and returns the matching
// unlock. On ctx expiry the lock is not held and ctx.Err() is returned.
func (l *threadLocks) lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	tl, ok := l.locks[id]
	if !ok {
		tl = &threadLock{held: make(chan struct{}, 1)}
		l.locks[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	select {
	case tl.held <- struct{}{}:
	case <-ctx.Done():
		l.release(id, tl)
		return nil, ctx.Err()
	}

	return func() {
		<-tl.held
		l.release(id, tl)
	}, nil
}

func (l *threadLocks) release(id string, tl *threadLock) {
	l.mu.Lock()
	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}

func (l *threadLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
