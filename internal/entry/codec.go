package entry

import (
	"fmt"
	"strings"

	"lvcs/internal/errors"
	"lvcs/internal/stream"
)

// Entry record tags. Values are part of the snapshot format.
const (
	fileTag      = 1
	directoryTag = 2
)

// Write encodes e and its subtree: [tag][id][name] then the content for a
// file or the count-prefixed child records for a directory.
func Write(w *stream.Writer, e Entry) error {
	switch v := e.(type) {
	case *File:
		w.WriteInteger(fileTag)
		w.WriteInteger(v.id)
		w.WriteString(v.name)
		return w.WriteString(v.content)
	case *Directory:
		w.WriteInteger(directoryTag)
		w.WriteInteger(v.id)
		w.WriteString(v.name)
		if err := w.WriteCount(len(v.children)); err != nil {
			return err
		}
		for _, c := range v.children {
			if err := Write(w, c); err != nil {
				return err
			}
		}
		return w.Err()
	default:
		return errors.Unsupported("cannot encode entry of type %T", e)
	}
}

// Read decodes one entry record into a detached subtree.
func Read(r *stream.Reader) (Entry, error) {
	return read(r, 0)
}

// maxDepth guards against corrupt records nesting without end.
const maxDepth = 4096

func read(r *stream.Reader, depth int) (Entry, error) {
	if depth > maxDepth {
		return nil, errors.Malformed("entry nesting deeper than %d", maxDepth)
	}
	tag, err := r.ReadInteger()
	if err != nil {
		return nil, err
	}
	id, err := r.ReadInteger()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}

	switch tag {
	case fileTag:
		content, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return NewFile(id, name, content), nil
	case directoryTag:
		d := NewDirectory(id, name)
		n, err := r.ReadCount()
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			c, err := read(r, depth+1)
			if err != nil {
				return nil, err
			}
			if err := validName(c.Name()); err != nil {
				return nil, errors.Malformed("child %d of %q: %v", i, name, err)
			}
			if err := d.insertChild(c, -1); err != nil {
				return nil, errors.Malformed("child %d of %q: %v", i, name, err)
			}
		}
		return d, nil
	default:
		return nil, errors.Malformed("unknown entry tag %d", tag)
	}
}

// WriteRoot encodes the whole tree as the root directory record.
func WriteRoot(w *stream.Writer, r *Root) error {
	return Write(w, r.dir)
}

// ReadRoot decodes a tree written by WriteRoot.
func ReadRoot(r *stream.Reader) (*Root, error) {
	e, err := Read(r)
	if err != nil {
		return nil, err
	}
	d, ok := e.(*Directory)
	if !ok || d.id != RootID {
		return nil, errors.Malformed("snapshot does not start with the root directory")
	}
	root, err := newRootFrom(d)
	if err != nil {
		return nil, errors.Malformed("snapshot: %v", err)
	}
	return root, nil
}

// String renders the subtree one entry per line, for debugging and the CLI.
func String(e Entry) string {
	var b strings.Builder
	e.FindEntry(func(x Entry) bool {
		if d, ok := x.(*Directory); ok && d.root {
			return false
		}
		indent := x.Path().Len() - e.Path().Len()
		if d, ok := e.(*Directory); ok && d.root {
			indent--
		}
		line := fmt.Sprintf("%*s%s", indent*2, "", x.Name())
		if x.IsDirectory() {
			line += "/"
		}
		fmt.Fprintf(&b, "%s  #%d\n", line, x.ID())
		return false
	})
	return b.String()
}
