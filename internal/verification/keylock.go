package verification

import (
	"context"
	"sync"
)

// KeyLock hands out one exclusive token per key. Waiters for a key are served
// in arrival order and keys with no holder and no waiters are forgotten.
type KeyLock struct {
	mu   sync.Mutex
	keys map[string]*keyQueue
}

type keyQueue struct {
	waiters []chan struct{}
}

func NewKeyLock() *KeyLock {
	return &KeyLock{keys: make(map[string]*keyQueue)}
}

// Lock blocks until the token for key is held or ctx is done. The returned
// release func must be called exactly once; extra calls are ignored.
func (l *KeyLock) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	q, held := l.keys[key]
	if !held {
		l.keys[key] = &keyQueue{}
		l.mu.Unlock()
		return l.releaser(key), nil
	}
	ready := make(chan struct{})
	q.waiters = append(q.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return l.releaser(key), nil
	case <-ctx.Done():
		l.mu.Lock()
		removed := false
		for i, w := range q.waiters {
			if w == ready {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				removed = true
				break
			}
		}
		l.mu.Unlock()
		if !removed {
			// handed the token while giving up; pass it on
			l.release(key)
		}
		return nil, ctx.Err()
	}
}

func (l *KeyLock) releaser(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(key) })
	}
}

func (l *KeyLock) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.keys[key]
	if !ok {
		return
	}
	if len(q.waiters) == 0 {
		delete(l.keys, key)
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	close(next)
}

// Len returns the number of keys currently held.
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
