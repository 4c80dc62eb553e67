package change

import (
	"lvcs/internal/errors"
	"lvcs/internal/stream"
)

// WriteChange encodes c as [tag] followed by the variant's fields.
func WriteChange(w *stream.Writer, c Change) error {
	switch c.(type) {
	case *CreateFile, *CreateDirectory, *ContentChange, *Rename, *Move, *Delete:
	default:
		return errors.Unsupported("cannot encode change of type %T", c)
	}
	w.WriteInteger(int(c.Kind()))
	switch v := c.(type) {
	case *CreateFile:
		w.WriteInteger(v.id)
		w.WritePath(v.path)
		w.WriteString(v.content)
	case *CreateDirectory:
		w.WriteInteger(v.id)
		w.WritePath(v.path)
	case *ContentChange:
		w.WritePath(v.path)
		w.WriteString(v.content)
	case *Rename:
		w.WritePath(v.path)
		w.WriteString(v.newName)
	case *Move:
		w.WritePath(v.path)
		w.WritePath(v.newParent)
	case *Delete:
		w.WritePath(v.path)
	}
	return w.Err()
}

// ReadChange decodes one change record, dispatching on its tag.
func ReadChange(r *stream.Reader) (Change, error) {
	tag, err := r.ReadInteger()
	if err != nil {
		return nil, err
	}
	switch Kind(tag) {
	case KindCreateFile:
		id, err := r.ReadInteger()
		if err != nil {
			return nil, err
		}
		p, err := r.ReadPath()
		if err != nil {
			return nil, err
		}
		content, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return NewCreateFile(id, p, content), nil
	case KindCreateDirectory:
		id, err := r.ReadInteger()
		if err != nil {
			return nil, err
		}
		p, err := r.ReadPath()
		if err != nil {
			return nil, err
		}
		return NewCreateDirectory(id, p), nil
	case KindContentChange:
		p, err := r.ReadPath()
		if err != nil {
			return nil, err
		}
		content, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return NewContentChange(p, content), nil
	case KindRename:
		p, err := r.ReadPath()
		if err != nil {
			return nil, err
		}
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return NewRename(p, name), nil
	case KindMove:
		p, err := r.ReadPath()
		if err != nil {
			return nil, err
		}
		parent, err := r.ReadPath()
		if err != nil {
			return nil, err
		}
		return NewMove(p, parent), nil
	case KindDelete:
		p, err := r.ReadPath()
		if err != nil {
			return nil, err
		}
		return NewDelete(p), nil
	default:
		return nil, errors.Malformed("unknown change tag %d", tag)
	}
}

// WriteChangeSet encodes [label][count][count × change].
func WriteChangeSet(w *stream.Writer, cs *ChangeSet) error {
	w.WriteString(cs.label)
	if err := w.WriteCount(len(cs.changes)); err != nil {
		return err
	}
	for _, c := range cs.changes {
		if err := WriteChange(w, c); err != nil {
			return err
		}
	}
	return nil
}

// ReadChangeSet decodes a record written by WriteChangeSet. Any failure
// aborts the whole record.
func ReadChangeSet(r *stream.Reader) (*ChangeSet, error) {
	label, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadCount()
	if err != nil {
		return nil, err
	}
	changes := make([]Change, 0, n)
	for i := 0; i < n; i++ {
		c, err := ReadChange(r)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return &ChangeSet{label: label, changes: changes}, nil
}
