// Package history is the durable log of change sets. Revision n is the
// tree after the first n change sets; revision 0 is the empty tree.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"lvcs/internal/change"
	"lvcs/internal/engine"
	"lvcs/internal/entry"
	"lvcs/internal/errors"
	"lvcs/internal/paths"
	"lvcs/internal/snapshot"
	"lvcs/internal/storage"
	"lvcs/internal/stream"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Revision is the metadata stored next to each change set record.
type Revision struct {
	ID         string    `json:"id"`
	Revision   int       `json:"revision"`
	Label      string    `json:"label,omitempty"`
	Changes    int       `json:"changes"`
	RecordedAt time.Time `json:"recorded_at"`
	Size       int       `json:"size"`
}

// EntryChange is one change that touched an entry, with where it happened.
type EntryChange struct {
	Revision int           `json:"revision"`
	Label    string        `json:"label,omitempty"`
	Path     string        `json:"path"`
	Change   change.Change `json:"-"`
}

// Options configures History behavior
type Options struct {
	// Store a full snapshot every SnapshotInterval revisions
	SnapshotInterval int
	// Number of decoded snapshots to cache
	CacheSize   int
	Compression snapshot.CompressionOptions
	Logger      *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		SnapshotInterval: 50,
		CacheSize:        16,
		Compression:      snapshot.DefaultCompressionOptions(),
	}
}

// History owns the head tree and serializes every mutation of it.
type History struct {
	db        *badger.DB
	log       *storage.BadgerStore
	meta      *storage.BadgerStore
	snapshots *snapshot.Store
	ids       *idAllocator
	interval  int
	logger    *zap.Logger

	mu       sync.RWMutex
	head     *entry.Root
	revision int
}

// Open loads the history stored in db and rebuilds the head tree. The
// caller keeps ownership of db; Close releases only what History acquired.
func Open(ctx context.Context, db *badger.DB, opts Options) (*History, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SnapshotInterval <= 0 {
		opts.SnapshotInterval = DefaultOptions().SnapshotInterval
	}

	snapshots, err := snapshot.New(db, snapshot.Options{
		CacheSize:   opts.CacheSize,
		Compression: opts.Compression,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}
	ids, err := newIDAllocator(db)
	if err != nil {
		return nil, err
	}

	h := &History{
		db:        db,
		log:       storage.NewBadgerStore(db, "changeset"),
		meta:      storage.NewBadgerStore(db, "changeset-meta"),
		snapshots: snapshots,
		ids:       ids,
		interval:  opts.SnapshotInterval,
		logger:    opts.Logger,
	}

	if h.revision, err = h.lastRevision(); err != nil {
		ids.release()
		return nil, err
	}
	if err := h.dropOrphans(); err != nil {
		ids.release()
		return nil, fmt.Errorf("dropping records past revision %d: %w", h.revision, err)
	}
	if h.head, err = h.rebuild(ctx, h.revision); err != nil {
		ids.release()
		return nil, fmt.Errorf("rebuilding head at revision %d: %w", h.revision, err)
	}
	h.ids.raise(maxID(h.head))

	h.logger.Info("history opened",
		zap.Int("revision", h.revision),
		zap.Int("entries", h.head.Len()))
	return h, nil
}

func (h *History) Close() error {
	return h.ids.release()
}

// IDs is the allocator builders for this history must use.
func (h *History) IDs() change.IDAllocator { return h.ids }

// NewBuilder starts a change set whose new entries get ids from this history.
func (h *History) NewBuilder() *change.Builder {
	return change.NewBuilder(h.ids)
}

// Revision is the number of recorded change sets.
func (h *History) Revision() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.revision
}

// Head returns a copy of the current tree.
func (h *History) Head() *entry.Root {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.head.Copy()
}

// Record applies cs to the head and appends it to the log. If any change
// fails the head is left as it was and nothing is stored.
func (h *History) Record(ctx context.Context, cs *change.ChangeSet) (Revision, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record(ctx, cs)
}

func (h *History) record(ctx context.Context, cs *change.ChangeSet) (Revision, error) {
	if err := ctx.Err(); err != nil {
		return Revision{}, err
	}

	work := h.head.Copy()
	if err := engine.ApplyChangeSet(work, cs); err != nil {
		return Revision{}, fmt.Errorf("recording: %w", err)
	}

	record, err := encodeChangeSet(cs)
	if err != nil {
		return Revision{}, err
	}
	rev := Revision{
		ID:         uuid.New().String(),
		Revision:   h.revision + 1,
		Label:      cs.Label(),
		Changes:    cs.Len(),
		RecordedAt: time.Now().UTC(),
		Size:       len(record),
	}
	metaJSON, err := json.Marshal(rev)
	if err != nil {
		return Revision{}, fmt.Errorf("marshaling revision meta: %w", err)
	}

	key := storage.RevisionKey(rev.Revision)
	err = storage.Update(h.db, func(t *storage.Txn) error {
		if err := h.log.CreateIn(t, key, record); err != nil {
			return err
		}
		return h.meta.CreateIn(t, key, metaJSON)
	})
	if err != nil {
		return Revision{}, err
	}

	h.head = work
	h.revision = rev.Revision

	if rev.Revision%h.interval == 0 {
		if _, err := h.snapshots.Save(rev.Revision, work); err != nil {
			// The log is complete without it; reconstruction just replays more.
			h.logger.Warn("saving snapshot", zap.Int("revision", rev.Revision), zap.Error(err))
		}
	}

	h.logger.Info("change set recorded",
		zap.Int("revision", rev.Revision),
		zap.String("label", rev.Label),
		zap.Int("changes", rev.Changes))
	return rev, nil
}

// List returns the metadata of every revision in order.
func (h *History) List() ([]Revision, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var revs []Revision
	err := h.meta.Scan(func(_ string, raw []byte) (bool, error) {
		var rev Revision
		if err := json.Unmarshal(raw, &rev); err != nil {
			return false, errors.Malformed("revision meta: %v", err)
		}
		revs = append(revs, rev)
		return true, nil
	})
	return revs, err
}

func (h *History) Meta(rev int) (Revision, error) {
	raw, err := h.meta.Get(storage.RevisionKey(rev))
	if err != nil {
		return Revision{}, err
	}
	var meta Revision
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Revision{}, errors.Malformed("revision meta: %v", err)
	}
	return meta, nil
}

// Get decodes the change set recorded as rev. The result has not been
// applied to anything.
func (h *History) Get(rev int) (*change.ChangeSet, error) {
	record, err := h.log.Get(storage.RevisionKey(rev))
	if err != nil {
		return nil, err
	}
	cs, err := decodeChangeSet(record)
	if err != nil {
		return nil, fmt.Errorf("decoding revision %d: %w", rev, err)
	}
	return cs, nil
}

// StateAt reconstructs the tree as it was after revision rev.
func (h *History) StateAt(ctx context.Context, rev int) (*entry.Root, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := h.checkRevision(rev); err != nil {
		return nil, err
	}
	if rev == h.revision {
		return h.head.Copy(), nil
	}
	return h.rebuild(ctx, rev)
}

// RevertTo undoes every change set after rev, newest first, and drops
// them from the log. The ids they allocated stay consumed.
func (h *History) RevertTo(ctx context.Context, rev int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkRevision(rev); err != nil {
		return err
	}
	if rev == h.revision {
		return nil
	}

	// Replay from a snapshot at or before rev so every change set above rev
	// carries the captures its revert needs.
	base, root, err := h.start(rev)
	if err != nil {
		return err
	}
	var undo []*change.ChangeSet
	err = h.replay(ctx, root, base, h.revision, func(r int, cs *change.ChangeSet) error {
		if r > rev {
			undo = append(undo, cs)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i := len(undo) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := engine.RevertChangeSet(root, undo[i]); err != nil {
			return fmt.Errorf("reverting revision %d: %w", rev+1+i, err)
		}
	}

	if err := h.truncate(rev); err != nil {
		return err
	}

	h.logger.Info("reverted",
		zap.Int("from", h.revision),
		zap.Int("to", rev))
	h.head = root
	h.revision = rev
	return nil
}

// HistoryOf lists, oldest first, the changes that affected the entry now at
// p: changes to the entry itself and to the directories that held it at the
// time. For the root it lists every change.
func (h *History) HistoryOf(ctx context.Context, p paths.Path) ([]EntryChange, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	target, err := h.head.Entry(p)
	if err != nil {
		return nil, err
	}
	id := target.ID()

	var result []EntryChange
	root := entry.NewRoot()
	for r := 1; r <= h.revision; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cs, err := h.Get(r)
		if err != nil {
			return nil, err
		}
		// Affects compares against the entry's location right after each
		// change, so the changes are applied one at a time.
		for i, c := range cs.Changes() {
			if err := c.ApplyTo(root); err != nil {
				return nil, fmt.Errorf("replaying revision %d change %d (%s): %w", r, i, c, err)
			}
			// everything is below the root
			affects := id == entry.RootID
			if !affects {
				e, err := root.EntryByID(id)
				affects = err == nil && c.Affects(e)
			}
			if affects {
				result = append(result, EntryChange{
					Revision: r,
					Label:    cs.Label(),
					Path:     c.Path().String(),
					Change:   c,
				})
			}
		}
	}
	return result, nil
}

func (h *History) checkRevision(rev int) error {
	if rev < 0 || rev > h.revision {
		return errors.NotFound("no revision %d (head is %d)", rev, h.revision)
	}
	return nil
}

func (h *History) lastRevision() (int, error) {
	last := 0
	err := h.meta.ScanReverse(func(id string, _ []byte) (bool, error) {
		r, err := strconv.Atoi(id)
		if err != nil {
			return false, errors.Malformed("revision key %q", id)
		}
		last = r
		return false, nil
	})
	return last, err
}

// truncate drops every revision after rev, with its snapshots, in one
// transaction. The head is the caller's to update.
func (h *History) truncate(rev int) error {
	return storage.Update(h.db, func(t *storage.Txn) error {
		for r := h.revision; r > rev; r-- {
			key := storage.RevisionKey(r)
			if err := h.meta.DeleteIn(t, key); err != nil {
				return err
			}
			if err := h.log.DeleteIn(t, key); err != nil {
				return err
			}
		}
		return h.snapshots.DeleteAfterIn(t, rev)
	})
}

// dropOrphans removes change set records and snapshots past the last
// revision with metadata. They are left behind by stores written before
// records and metadata shared a transaction.
func (h *History) dropOrphans() error {
	var orphans []string
	err := h.log.ScanReverse(func(id string, _ []byte) (bool, error) {
		r, err := strconv.Atoi(id)
		if err != nil {
			return false, errors.Malformed("revision key %q", id)
		}
		if r <= h.revision {
			return false, nil
		}
		orphans = append(orphans, id)
		return true, nil
	})
	if err != nil {
		return err
	}

	err = storage.Update(h.db, func(t *storage.Txn) error {
		for _, id := range orphans {
			if err := h.log.DeleteIn(t, id); err != nil {
				return err
			}
		}
		return h.snapshots.DeleteAfterIn(t, h.revision)
	})
	if err != nil {
		return err
	}
	if len(orphans) > 0 {
		h.logger.Warn("dropped change set records without metadata",
			zap.Int("revision", h.revision),
			zap.Int("records", len(orphans)))
	}
	return nil
}

// start returns the latest stored state at or before rev.
func (h *History) start(rev int) (int, *entry.Root, error) {
	base, ok, err := h.snapshots.Nearest(rev)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, entry.NewRoot(), nil
	}
	root, err := h.snapshots.Load(base)
	if err != nil {
		return 0, nil, err
	}
	return base, root, nil
}

func (h *History) rebuild(ctx context.Context, rev int) (*entry.Root, error) {
	base, root, err := h.start(rev)
	if err != nil {
		return nil, err
	}
	if err := h.replay(ctx, root, base, rev, nil); err != nil {
		return nil, err
	}
	return root, nil
}

// replay applies revisions from+1 through to onto root.
func (h *History) replay(ctx context.Context, root *entry.Root, from, to int, visit func(int, *change.ChangeSet) error) error {
	for r := from + 1; r <= to; r++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cs, err := h.Get(r)
		if err != nil {
			return err
		}
		if err := engine.ApplyChangeSet(root, cs); err != nil {
			return fmt.Errorf("replaying revision %d: %w", r, err)
		}
		if visit != nil {
			if err := visit(r, cs); err != nil {
				return err
			}
		}
	}
	return nil
}

func maxID(root *entry.Root) int {
	max := 0
	root.Walk(func(e entry.Entry) error {
		if e.ID() > max {
			max = e.ID()
		}
		return nil
	})
	return max
}

func encodeChangeSet(cs *change.ChangeSet) ([]byte, error) {
	var buf bytes.Buffer
	if err := change.WriteChangeSet(stream.NewWriter(&buf), cs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeChangeSet(record []byte) (*change.ChangeSet, error) {
	return change.ReadChangeSet(stream.NewReader(bytes.NewReader(record)))
}
