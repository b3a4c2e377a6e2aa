// Package lock serializes mutations of a single medication across requests.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
)

// Locker acquires an exclusive lock on key. The returned func releases it and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// LocalLocker is an in-process keyed mutex
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns a keyed mutex. wait bounds how long Lock blocks; zero means until ctx is done.
func NewLocal(wait time.Duration) *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot), wait: wait}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s, false)
		return nil, waitError(ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, s, true) })
	}, nil
}

func (l *LocalLocker) release(key string, s *slot, held bool) {
	if held {
		<-s.ch
	}
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// waitError maps a wait deadline to ErrLockTimeout and keeps caller cancellation as is.
func waitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.ErrLockTimeout.Code, apperrors.ErrLockTimeout.Message)
	}
	return err
}
