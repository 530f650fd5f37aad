package allowance

import (
	"sync"

	"github.com/absentify/allowance-engine/generic"
)

// memberLocks serializes ledger passes per member. Entries are dropped when
// nobody holds or waits for them.
type memberLocks struct {
	mu    sync.Mutex
	locks map[generic.MemberID]*memberLock
}

type memberLock struct {
	sync.Mutex
	refs int
}

func newMemberLocks() *memberLocks {
	return &memberLocks{locks: map[generic.MemberID]*memberLock{}}
}

// lock blocks until id is free and returns the unlock function.
func (l *memberLocks) lock(id generic.MemberID) func() {
	l.mu.Lock()
	ml, ok := l.locks[id]
	if !ok {
		ml = &memberLock{}
		l.locks[id] = ml
	}
	ml.refs++
	l.mu.Unlock()

	ml.Lock()
	return func() {
		ml.Unlock()
		l.mu.Lock()
		ml.refs--
		if ml.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *memberLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
