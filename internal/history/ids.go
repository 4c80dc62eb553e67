package history

import (
	"sync/atomic"

	"lvcs/internal/errors"

	"github.com/dgraph-io/badger/v4"
)

const (
	idSequenceKey = "seq:ids"
	idBandwidth   = 1000
)

// idAllocator hands out entry ids from a badger sequence. Sequence values
// start at 0, which is the root's id, so every value is shifted by one.
// Ids at or below floor are skipped; floor is raised when the log contains
// ids the sequence never issued (after an import).
type idAllocator struct {
	seq   *badger.Sequence
	floor atomic.Int64
}

func newIDAllocator(db *badger.DB) (*idAllocator, error) {
	seq, err := db.GetSequence([]byte(idSequenceKey), idBandwidth)
	if err != nil {
		return nil, errors.IOFailure("opening id sequence", err)
	}
	return &idAllocator{seq: seq}, nil
}

func (a *idAllocator) NextID() (int, error) {
	for {
		n, err := a.seq.Next()
		if err != nil {
			return 0, errors.IOFailure("allocating id", err)
		}
		if id := int64(n) + 1; id > a.floor.Load() {
			return int(id), nil
		}
	}
}

// raise makes sure no id at or below max is handed out.
func (a *idAllocator) raise(max int) {
	for {
		cur := a.floor.Load()
		if int64(max) <= cur || a.floor.CompareAndSwap(cur, int64(max)) {
			return
		}
	}
}

func (a *idAllocator) release() error {
	if err := a.seq.Release(); err != nil {
		return errors.IOFailure("releasing id sequence", err)
	}
	return nil
}
