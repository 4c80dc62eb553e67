package entry

import (
	"lvcs/internal/errors"
	"lvcs/internal/paths"
)

// RootID is the id of the root directory. Allocated ids start above it.
const RootID = 0

// Root is the mutable tree that change sets are applied to. The Do*
// primitives are the only way the tree changes; each one checks every
// precondition before touching the tree, so a failed call leaves it as it
// was. Root is not safe for concurrent use.
type Root struct {
	dir   *Directory
	index map[int]Entry
}

func NewRoot() *Root {
	return &Root{
		dir:   &Directory{base: base{id: RootID}, root: true},
		index: make(map[int]Entry),
	}
}

// newRootFrom adopts d as the root directory and indexes its subtree.
func newRootFrom(d *Directory) (*Root, error) {
	d.root = true
	d.parent = nil
	r := &Root{dir: d, index: make(map[int]Entry)}
	for _, c := range d.children {
		if err := r.indexSubtree(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Directory exposes the root directory for read access.
func (r *Root) Directory() *Directory { return r.dir }

func (r *Root) Children() []Entry { return r.dir.Children() }

// Len is the number of entries below the root.
func (r *Root) Len() int { return len(r.index) }

func (r *Root) Copy() *Root {
	c, _ := newRootFrom(r.dir.copyDir())
	return c
}

func (r *Root) Equal(other *Root) bool {
	return Equal(r.dir, other.dir)
}

// Entry resolves p by names. The empty path resolves to the root directory.
func (r *Root) Entry(p paths.Path) (Entry, error) {
	var cur Entry = r.dir
	for _, name := range p.Names() {
		d, ok := cur.(*Directory)
		if !ok {
			return nil, errors.NotFound("no entry at %q", p.String())
		}
		if cur = d.Child(name); cur == nil {
			return nil, errors.NotFound("no entry at %q", p.String())
		}
	}
	return cur, nil
}

// EntryByIdPath resolves p by ids. It is the authoritative lookup: it
// still finds an entry after it was renamed, as long as the chain of ids
// above it is the one recorded in p.
func (r *Root) EntryByIdPath(p paths.IdPath) (Entry, error) {
	if p.IsEmpty() {
		return r.dir, nil
	}
	e, ok := r.index[p.ID()]
	if !ok || !e.IdPath().Equal(p) {
		return nil, errors.NotFound("no entry with id path %s", p.String())
	}
	return e, nil
}

// EntryByID finds an entry anywhere in the tree.
func (r *Root) EntryByID(id int) (Entry, error) {
	e, ok := r.index[id]
	if !ok {
		return nil, errors.NotFound("no entry with id %d", id)
	}
	return e, nil
}

// Walk visits every entry below the root in depth-first pre-order and
// stops at the first error fn returns.
func (r *Root) Walk(fn func(Entry) error) error {
	return walk(r.dir.children, fn)
}

func walk(children []Entry, fn func(Entry) error) error {
	for _, c := range children {
		if err := fn(c); err != nil {
			return err
		}
		if d, ok := c.(*Directory); ok {
			if err := walk(d.children, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// HasEntry reports whether p resolves.
func (r *Root) HasEntry(p paths.Path) bool {
	_, err := r.Entry(p)
	return err == nil
}

func (r *Root) DoCreateFile(id int, p paths.Path, content string) error {
	return r.create(p, NewFile(id, p.Name(), content))
}

func (r *Root) DoCreateDirectory(id int, p paths.Path) error {
	return r.create(p, NewDirectory(id, p.Name()))
}

func (r *Root) create(p paths.Path, e Entry) error {
	if p.IsRoot() {
		return errors.StructuralViolation("cannot create the root")
	}
	if err := validName(p.Name()); err != nil {
		return err
	}
	if e.ID() == RootID {
		return errors.StructuralViolation("id %d is reserved for the root", RootID)
	}
	if _, taken := r.index[e.ID()]; taken {
		return errors.StructuralViolation("id %d is already in use", e.ID())
	}
	parent, err := r.directoryAt(p.Parent())
	if err != nil {
		return err
	}
	if err := parent.insertChild(e, -1); err != nil {
		return err
	}
	r.index[e.ID()] = e
	return nil
}

func (r *Root) DoDelete(p paths.Path) error {
	e, err := r.nonRoot(p)
	if err != nil {
		return err
	}
	if err := e.Parent().RemoveChild(e); err != nil {
		return err
	}
	r.unindexSubtree(e)
	return nil
}

func (r *Root) DoRename(p paths.Path, newName string) error {
	e, err := r.nonRoot(p)
	if err != nil {
		return err
	}
	if err := validName(newName); err != nil {
		return err
	}
	if newName == e.Name() {
		return nil
	}
	if e.Parent().Child(newName) != nil {
		return errors.StructuralViolation("%q already exists in %q", newName, e.Parent().Path().String())
	}
	e.setName(newName)
	return nil
}

func (r *Root) DoMove(p, newParent paths.Path) error {
	return r.DoMoveTo(p, newParent, -1)
}

// DoMoveTo moves the entry at p under newParent at child position index.
// A negative or out of range index appends.
func (r *Root) DoMoveTo(p, newParent paths.Path, index int) error {
	e, err := r.nonRoot(p)
	if err != nil {
		return err
	}
	dest, err := r.directoryAt(newParent)
	if err != nil {
		return err
	}
	for a := dest; a != nil; a = a.parent {
		if Entry(a) == e {
			return errors.StructuralViolation("cannot move %q into itself", p.String())
		}
	}
	old := e.Parent()
	if old != dest && dest.Child(e.Name()) != nil {
		return errors.StructuralViolation("%q already exists in %q", e.Name(), newParent.String())
	}
	if err := old.RemoveChild(e); err != nil {
		return err
	}
	return dest.insertChild(e, index)
}

func (r *Root) DoChangeContent(p paths.Path, content string) error {
	e, err := r.Entry(p)
	if err != nil {
		return err
	}
	f, ok := e.(*File)
	if !ok {
		return errors.StructuralViolation("%q is not a file", p.String())
	}
	f.content = content
	return nil
}

// DoInsert attaches a detached subtree under parent at child position index,
// keeping the ids it carries.
func (r *Root) DoInsert(parent paths.Path, e Entry, index int) error {
	if e.Parent() != nil {
		return errors.StructuralViolation("%q is still attached", e.Name())
	}
	if err := validName(e.Name()); err != nil {
		return err
	}
	dest, err := r.directoryAt(parent)
	if err != nil {
		return err
	}
	seen := make(map[int]bool)
	taken := e.FindEntry(func(x Entry) bool {
		_, used := r.index[x.ID()]
		if used || seen[x.ID()] || x.ID() == RootID {
			return true
		}
		seen[x.ID()] = true
		return false
	})
	if taken != nil {
		return errors.StructuralViolation("id %d is already in use", taken.ID())
	}
	if err := dest.insertChild(e, index); err != nil {
		return err
	}
	return r.indexSubtree(e)
}

func (r *Root) nonRoot(p paths.Path) (Entry, error) {
	if p.IsRoot() {
		return nil, errors.StructuralViolation("the root cannot be deleted, renamed or moved")
	}
	return r.Entry(p)
}

func (r *Root) directoryAt(p paths.Path) (*Directory, error) {
	e, err := r.Entry(p)
	if err != nil {
		return nil, errors.StructuralViolation("parent %q does not exist", p.String())
	}
	d, ok := e.(*Directory)
	if !ok {
		return nil, errors.StructuralViolation("%q is not a directory", p.String())
	}
	return d, nil
}

func (r *Root) indexSubtree(e Entry) error {
	var dup Entry
	e.FindEntry(func(x Entry) bool {
		if _, taken := r.index[x.ID()]; taken || x.ID() == RootID {
			dup = x
			return true
		}
		r.index[x.ID()] = x
		return false
	})
	if dup != nil {
		return errors.StructuralViolation("id %d is already in use", dup.ID())
	}
	return nil
}

func (r *Root) unindexSubtree(e Entry) {
	e.FindEntry(func(x Entry) bool {
		delete(r.index, x.ID())
		return false
	})
}
