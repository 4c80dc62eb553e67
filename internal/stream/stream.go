// Package stream is the binary boundary every persisted record goes
// through. Integers are fixed-width big-endian int32, strings are
// length-prefixed UTF-8, sequences are count-prefixed.
package stream

import (
	"encoding/binary"
	stderrors "errors"
	"io"
	"math"

	"lvcs/internal/errors"
	"lvcs/internal/paths"
)

// MaxStringLen bounds a single string record so a corrupt length prefix
// cannot trigger a huge allocation.
const MaxStringLen = 256 << 20

// MaxCount bounds a count prefix for the same reason.
const MaxCount = 1 << 24

// Writer writes records to an underlying io.Writer. The first error sticks:
// every later call returns it without writing.
type Writer struct {
	w   io.Writer
	buf [4]byte
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Err() error { return w.err }

func (w *Writer) WriteInteger(v int) error {
	if w.err != nil {
		return w.err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		w.err = errors.StructuralViolation("integer %d does not fit a 32-bit record", v)
		return w.err
	}
	binary.BigEndian.PutUint32(w.buf[:], uint32(int32(v)))
	return w.write(w.buf[:])
}

func (w *Writer) WriteString(s string) error {
	if w.err == nil && len(s) > MaxStringLen {
		w.err = errors.StructuralViolation("string of %d bytes exceeds record limit", len(s))
		return w.err
	}
	if err := w.WriteInteger(len(s)); err != nil {
		return err
	}
	return w.write([]byte(s))
}

// WriteCount writes a sequence length.
func (w *Writer) WriteCount(n int) error {
	if w.err == nil && n > MaxCount {
		w.err = errors.StructuralViolation("sequence of %d elements exceeds record limit", n)
		return w.err
	}
	return w.WriteInteger(n)
}

func (w *Writer) WritePath(p paths.Path) error {
	names := p.Names()
	if err := w.WriteCount(len(names)); err != nil {
		return err
	}
	for _, n := range names {
		if err := w.WriteString(n); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) WriteIdPath(p paths.IdPath) error {
	ids := p.IDs()
	if err := w.WriteCount(len(ids)); err != nil {
		return err
	}
	for _, id := range ids {
		if err := w.WriteInteger(id); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) write(b []byte) error {
	if w.err != nil {
		return w.err
	}
	if _, err := w.w.Write(b); err != nil {
		w.err = errors.IOFailure("writing record", err)
	}
	return w.err
}

// Reader is the counterpart of Writer.
type Reader struct {
	r   io.Reader
	buf [4]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) ReadInteger() (int, error) {
	if err := r.read(r.buf[:]); err != nil {
		return 0, err
	}
	return int(int32(binary.BigEndian.Uint32(r.buf[:]))), nil
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadInteger()
	if err != nil {
		return "", err
	}
	if n < 0 || n > MaxStringLen {
		return "", errors.Malformed("invalid string length %d", n)
	}
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if err := r.read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadCount reads a sequence length and rejects negative or oversized ones.
func (r *Reader) ReadCount() (int, error) {
	n, err := r.ReadInteger()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > MaxCount {
		return 0, errors.Malformed("invalid element count %d", n)
	}
	return n, nil
}

func (r *Reader) ReadPath() (paths.Path, error) {
	n, err := r.ReadCount()
	if err != nil {
		return paths.Path{}, err
	}
	names := make([]string, n)
	for i := range names {
		if names[i], err = r.ReadString(); err != nil {
			return paths.Path{}, err
		}
	}
	return paths.NewPath(names...), nil
}

func (r *Reader) ReadIdPath() (paths.IdPath, error) {
	n, err := r.ReadCount()
	if err != nil {
		return paths.IdPath{}, err
	}
	ids := make([]int, n)
	for i := range ids {
		if ids[i], err = r.ReadInteger(); err != nil {
			return paths.IdPath{}, err
		}
	}
	return paths.NewIdPath(ids...), nil
}

func (r *Reader) read(b []byte) error {
	_, err := io.ReadFull(r.r, b)
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, io.EOF), stderrors.Is(err, io.ErrUnexpectedEOF):
		return &errors.Error{Type: errors.ErrorTypeMalformed, Message: "truncated record", Cause: err}
	default:
		return errors.IOFailure("reading record", err)
	}
}
