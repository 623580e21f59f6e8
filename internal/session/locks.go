package session

import (
	"hash/fnv"
	"sync"
)

const roomLockStripes = 64

// roomLocks serializes persist-then-broadcast per room
// TECHNICAL DISCOVERY: Striped by room name so memory stays fixed no matter
// how many rooms come and go; two rooms sharing a stripe only share ordering,
// never correctness
type roomLocks struct {
	stripes [roomLockStripes]sync.Mutex
}

func (l *roomLocks) lock(room string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(room))
	mu := &l.stripes[h.Sum32()%roomLockStripes]

	mu.Lock()
	return mu.Unlock
}
