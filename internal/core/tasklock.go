package core

// tasklock.go implements the per-event single-slot lock.
//
// Imports and manual create/update/delete on an event all take the event's
// slot. A second attempt while the slot is held fails immediately with
// ErrEventBusy; nothing queues. MemoryTaskLock serves a single process,
// RedisTaskLock (tasklock_redis.go) shares the slot across replicas.

import (
	"context"
	"sync"
)

// TaskLock grants at most one holder per key.
type TaskLock interface {
	// TryAcquire takes the slot for key without waiting. On success the
	// returned release func must be called exactly once. ErrEventBusy is
	// returned when the slot is taken.
	TryAcquire(ctx context.Context, key string) (release func(), err error)
}

// MemoryTaskLock is an in-process TaskLock: one single-slot semaphore per key.
type MemoryTaskLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewMemoryTaskLock creates an empty MemoryTaskLock.
func NewMemoryTaskLock() *MemoryTaskLock {
	return &MemoryTaskLock{slots: make(map[string]chan struct{})}
}

func (l *MemoryTaskLock) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

// TryAcquire takes the slot for key if it is free.
func (l *MemoryTaskLock) TryAcquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := l.slot(key)
	select {
	case s <- struct{}{}:
	default:
		return nil, ErrEventBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-s })
	}, nil
}

// Held reports whether the slot for key is currently taken.
func (l *MemoryTaskLock) Held(key string) bool {
	l.mu.Lock()
	s, ok := l.slots[key]
	l.mu.Unlock()
	return ok && len(s) == 1
}

// TaskLockStatus is a snapshot of the lock's state.
type TaskLockStatus struct {
	Keys int `json:"keys"`
	Held int `json:"held"`
}

// Status returns the current lock state for monitoring.
func (l *MemoryTaskLock) Status() TaskLockStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := TaskLockStatus{Keys: len(l.slots)}
	for _, s := range l.slots {
		st.Held += len(s)
	}
	return st
}
