// internal/snapshot/store.go
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"lvcs/internal/entry"
	"lvcs/internal/storage"
	"lvcs/internal/stream"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Meta describes one stored snapshot
type Meta struct {
	Revision   int       `json:"revision"`
	Entries    int       `json:"entries"`
	Size       int       `json:"size"`
	StoredSize int       `json:"stored_size"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Options configures Store behavior
type Options struct {
	CacheSize   int // Number of decoded trees to keep
	Compression CompressionOptions
	Logger      *zap.Logger
}

// Store keeps full copies of the tree at chosen revisions so that
// reconstruction never has to replay the whole log.
type Store struct {
	db     *badger.DB
	data   *storage.BadgerStore
	meta   *storage.BadgerStore
	cache  *lru.Cache[int, *entry.Root]
	comp   *compressor
	logger *zap.Logger
}

func New(db *badger.DB, opts Options) (*Store, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 16
	}
	if opts.Compression == (CompressionOptions{}) {
		opts.Compression = DefaultCompressionOptions()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cache, err := lru.New[int, *entry.Root](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	comp, err := newCompressor(opts.Compression)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:     db,
		data:   storage.NewBadgerStore(db, "snapshot"),
		meta:   storage.NewBadgerStore(db, "snapshot-meta"),
		cache:  cache,
		comp:   comp,
		logger: opts.Logger,
	}, nil
}

// Save stores root as the state at rev, replacing an older snapshot of the
// same revision.
func (s *Store) Save(rev int, root *entry.Root) (Meta, error) {
	record, err := Encode(root)
	if err != nil {
		return Meta{}, err
	}

	stored, compressed := s.comp.compress(record)
	meta := Meta{
		Revision:   rev,
		Entries:    root.Len(),
		Size:       len(record),
		StoredSize: len(stored),
		Compressed: compressed,
		CreatedAt:  time.Now().UTC(),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Meta{}, fmt.Errorf("marshaling snapshot meta: %w", err)
	}

	key := storage.RevisionKey(rev)
	if err := s.data.Put(key, stored); err != nil {
		return Meta{}, err
	}
	if err := s.meta.Put(key, metaJSON); err != nil {
		return Meta{}, err
	}

	s.cache.Add(rev, root.Copy())
	s.logger.Debug("snapshot saved",
		zap.Int("revision", rev),
		zap.Int("entries", meta.Entries),
		zap.Int("size", meta.Size),
		zap.Int("stored_size", meta.StoredSize))
	return meta, nil
}

// Load returns an independent copy of the tree stored at rev.
func (s *Store) Load(rev int) (*entry.Root, error) {
	if root, ok := s.cache.Get(rev); ok {
		return root.Copy(), nil
	}

	stored, err := s.data.Get(storage.RevisionKey(rev))
	if err != nil {
		return nil, err
	}
	record, err := s.comp.decompress(stored)
	if err != nil {
		return nil, err
	}
	root, err := Decode(record)
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot %d: %w", rev, err)
	}

	s.cache.Add(rev, root)
	return root.Copy(), nil
}

// Nearest finds the latest snapshot at or before rev. ok is false when
// there is none.
func (s *Store) Nearest(rev int) (found int, ok bool, err error) {
	err = s.meta.ScanReverse(func(id string, _ []byte) (bool, error) {
		r, err := strconv.Atoi(id)
		if err != nil {
			return false, fmt.Errorf("bad snapshot key %q: %w", id, err)
		}
		if r <= rev {
			found, ok = r, true
			return false, nil
		}
		return true, nil
	})
	return found, ok, err
}

func (s *Store) Meta(rev int) (Meta, error) {
	raw, err := s.meta.Get(storage.RevisionKey(rev))
	if err != nil {
		return Meta{}, err
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Meta{}, fmt.Errorf("unmarshaling snapshot meta: %w", err)
	}
	return meta, nil
}

// List returns the metadata of every snapshot in revision order.
func (s *Store) List() ([]Meta, error) {
	var metas []Meta
	err := s.meta.Scan(func(_ string, raw []byte) (bool, error) {
		var meta Meta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return false, fmt.Errorf("unmarshaling snapshot meta: %w", err)
		}
		metas = append(metas, meta)
		return true, nil
	})
	return metas, err
}

// DeleteAfter drops every snapshot newer than rev.
func (s *Store) DeleteAfter(rev int) error {
	return storage.Update(s.db, func(t *storage.Txn) error {
		return s.DeleteAfterIn(t, rev)
	})
}

// DeleteAfterIn is DeleteAfter inside t, so the caller can drop snapshots
// together with the log records they were built from.
func (s *Store) DeleteAfterIn(t *storage.Txn, rev int) error {
	metas, err := s.List()
	if err != nil {
		return err
	}
	for _, m := range metas {
		if m.Revision <= rev {
			continue
		}
		key := storage.RevisionKey(m.Revision)
		if err := s.data.DeleteIn(t, key); err != nil {
			return err
		}
		if err := s.meta.DeleteIn(t, key); err != nil {
			return err
		}
		s.cache.Remove(m.Revision)
	}
	return nil
}

// Encode serializes root as a snapshot record.
func Encode(root *entry.Root) ([]byte, error) {
	var buf bytes.Buffer
	if err := entry.WriteRoot(stream.NewWriter(&buf), root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a record written by Encode.
func Decode(record []byte) (*entry.Root, error) {
	return entry.ReadRoot(stream.NewReader(bytes.NewReader(record)))
}
