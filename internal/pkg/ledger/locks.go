package ledger

import "sync"

// keyedLocks serializes transitions per payment id. The lock must cover the
// whole read-decide-write-cascade sequence, so two concurrent notification
// channels (webhook and recovery scan) can never both pass the pending
// precondition and both materialize a subscription.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[uint]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{entries: make(map[uint]*lockEntry)}
}

// acquire blocks until the per-id lock is held and returns the release
// function. Entries are refcounted so the map does not grow unbounded.
func (k *keyedLocks) acquire(id uint) func() {
	k.mu.Lock()
	entry, ok := k.entries[id]
	if !ok {
		entry = &lockEntry{}
		k.entries[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, id)
		}
		k.mu.Unlock()
	}
}
