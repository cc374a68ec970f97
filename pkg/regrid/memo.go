package regrid

import "sync"

// memo caches the result of compute per key, errors included. Nothing is
// ever evicted; compute runs at most once per key.
type memo[K comparable, V any] struct {
	mu   sync.RWMutex
	vals map[K]memoEntry[V]
}

type memoEntry[V any] struct {
	val V
	err error
}

func newMemo[K comparable, V any]() *memo[K, V] {
	return &memo[K, V]{vals: map[K]memoEntry[V]{}}
}

// lookup returns a stored entry without computing.
func (m *memo[K, V]) lookup(key K) (memoEntry[V], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.vals[key]
	return e, ok
}

// resolve returns the stored entry for key, computing it on a miss. fresh
// reports whether compute ran during this call.
func (m *memo[K, V]) resolve(key K, compute func() (V, error)) (val V, fresh bool, err error) {
	if e, ok := m.lookup(key); ok {
		return e.val, false, e.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.vals[key]; ok {
		return e.val, false, e.err
	}
	v, err := compute()
	m.vals[key] = memoEntry[V]{val: v, err: err}
	return v, true, err
}

// each visits the stored entries that did not fail.
func (m *memo[K, V]) each(fn func(K, V)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, e := range m.vals {
		if e.err == nil {
			fn(k, e.val)
		}
	}
}

// slot is a single-entry memo: it keeps the value for the most recent key
// and recomputes exactly when the key changes.
type slot[K comparable, V any] struct {
	mu    sync.Mutex
	set   bool
	key   K
	entry memoEntry[V]
}

func (s *slot[K, V]) resolve(key K, compute func() (V, error)) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set && s.key == key {
		return s.entry.val, s.entry.err
	}
	v, err := compute()
	s.set, s.key, s.entry = true, key, memoEntry[V]{val: v, err: err}
	return v, err
}

// lazy holds one value computed on first use.
type lazy[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (l *lazy[T]) get(compute func() (T, error)) (T, error) {
	l.once.Do(func() { l.val, l.err = compute() })
	return l.val, l.err
}
