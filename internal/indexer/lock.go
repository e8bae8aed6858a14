package indexer

import "sync/atomic"

// IndexLock serializes builds without blocking: a second caller is told a
// build is already running instead of waiting for it
type IndexLock struct {
	state atomic.Bool
}

// TryAcquire takes the lock if it is free and reports whether it did
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(false, true)
}

// Release frees the lock. Only the holder may call it.
func (l *IndexLock) Release() {
	l.state.Store(false)
}

// Held reports whether a build currently holds the lock
func (l *IndexLock) Held() bool {
	return l.state.Load()
}
