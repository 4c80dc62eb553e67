package history

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"lvcs/internal/change"
	"lvcs/internal/entry"
	"lvcs/internal/errors"
	"lvcs/internal/stream"

	"go.uber.org/zap"
	"golang.org/x/exp/mmap"
)

// Export file layout: magic, format version, change set count, change sets.
var archiveMagic = []byte("LVCS")

const archiveVersion = 1

// Export writes every recorded change set to w, oldest first.
func (h *History) Export(ctx context.Context, w io.Writer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(archiveMagic); err != nil {
		return errors.IOFailure("writing archive header", err)
	}
	sw := stream.NewWriter(bw)
	sw.WriteInteger(archiveVersion)
	if err := sw.WriteCount(h.revision); err != nil {
		return err
	}

	for r := 1; r <= h.revision; r++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cs, err := h.Get(r)
		if err != nil {
			return err
		}
		if err := change.WriteChangeSet(sw, cs); err != nil {
			return fmt.Errorf("exporting revision %d: %w", r, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return errors.IOFailure("flushing archive", err)
	}
	h.logger.Info("history exported", zap.Int("revisions", h.revision))
	return nil
}

// Import records the change sets of an archive written by Export. The
// history must be empty. The whole archive is decoded and replayed on a
// scratch tree first, and a storage failure part way drops what was
// already written, so a failed import records nothing.
func (h *History) Import(ctx context.Context, path string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.revision != 0 {
		return 0, errors.StructuralViolation("import needs an empty history, head is at revision %d", h.revision)
	}

	ra, err := mmap.Open(path)
	if err != nil {
		return 0, errors.IOFailure("opening archive", err)
	}
	defer ra.Close()

	sets, err := readArchive(ctx, io.NewSectionReader(ra, 0, int64(ra.Len())))
	if err != nil {
		return 0, fmt.Errorf("reading archive %s: %w", path, err)
	}

	scratch := entry.NewRoot()
	for i, cs := range sets {
		if err := cs.ApplyTo(scratch); err != nil {
			return 0, fmt.Errorf("archive change set %d does not apply: %w", i+1, err)
		}
	}
	h.ids.raise(maxID(scratch))

	for _, cs := range sets {
		if _, err := h.record(ctx, cs); err != nil {
			if terr := h.truncate(0); terr != nil {
				h.logger.Error("dropping partial import", zap.Error(terr))
			}
			h.head = entry.NewRoot()
			h.revision = 0
			return 0, err
		}
	}

	h.logger.Info("history imported",
		zap.String("path", path),
		zap.Int("revisions", len(sets)))
	return len(sets), nil
}

func readArchive(ctx context.Context, r io.Reader) ([]*change.ChangeSet, error) {
	magic := make([]byte, len(archiveMagic))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, archiveMagic) {
		return nil, errors.Malformed("not an lvcs archive")
	}

	sr := stream.NewReader(bufio.NewReader(r))
	version, err := sr.ReadInteger()
	if err != nil {
		return nil, err
	}
	if version != archiveVersion {
		return nil, errors.Malformed("unsupported archive version %d", version)
	}
	count, err := sr.ReadCount()
	if err != nil {
		return nil, err
	}

	sets := make([]*change.ChangeSet, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cs, err := change.ReadChangeSet(sr)
		if err != nil {
			return nil, fmt.Errorf("change set %d: %w", i+1, err)
		}
		sets = append(sets, cs)
	}
	return sets, nil
}
