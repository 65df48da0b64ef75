// Package lock serializes work on a single key, in-process or across
// replicas through Redis.
package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrEmptyKey = errors.New("lock key cannot be empty")

type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// Local is a keyed mutex for single-instance deployments.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{locks: map[string]*entry{}}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func() error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	e := l.acquire(key)
	defer l.release(key, e)

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.ch }()

	return fn()
}

func (l *Local) acquire(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
