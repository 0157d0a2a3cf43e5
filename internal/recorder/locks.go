package recorder

import (
	"sync"

	"github.com/fengqlin/GrandR/internal/fingerprint"
)

// lockTable serializes the lookup/execute/store sequence per fingerprint.
// Entries are reference-counted and removed once the last holder releases,
// so the table stays bounded by the number of in-flight fingerprints.
type lockTable struct {
	mu    sync.Mutex
	locks map[fingerprint.Fingerprint]*fpLock
}

type fpLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[fingerprint.Fingerprint]*fpLock)}
}

// acquire blocks until the caller holds the fingerprint's critical section.
func (t *lockTable) acquire(fp fingerprint.Fingerprint) {
	t.mu.Lock()
	l, ok := t.locks[fp]
	if !ok {
		l = &fpLock{}
		t.locks[fp] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
}

func (t *lockTable) release(fp fingerprint.Fingerprint) {
	t.mu.Lock()
	l := t.locks[fp]
	l.refs--
	if l.refs == 0 {
		delete(t.locks, fp)
	}
	t.mu.Unlock()

	l.mu.Unlock()
}
