package aegis

import "sync"

// keyedMutex provides per-key mutual exclusion. Mutations touching the
// same role or the same principal serialize; unrelated keys proceed in
// parallel. Entries are reference counted and removed once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Lock key namespaces. Mutations that hold both a role lock and a
// principal lock always take the role lock first.
func roleKey(roleID string) string           { return "role:" + roleID }
func roleNameKey(name string) string         { return "rolename:" + name }
func principalKey(principalID string) string { return "principal:" + principalID }
