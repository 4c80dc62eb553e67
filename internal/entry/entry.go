// Package entry models the tracked tree. An Entry keeps its id for its whole
// lifetime; only its name and parent change.
package entry

import (
	"strings"

	"lvcs/internal/errors"
	"lvcs/internal/paths"
)

// Entry is the contract shared by files and directories.
type Entry interface {
	ID() int
	Name() string
	// Parent is the owning directory, nil for the root and for detached
	// entries. It never owns the entry.
	Parent() *Directory
	Path() paths.Path
	IdPath() paths.IdPath
	IsDirectory() bool
	// Copy returns a detached deep copy with the same ids, names and content.
	Copy() Entry
	// Renamed returns a detached copy carrying name. The receiver is unchanged.
	Renamed(name string) Entry
	// FindEntry searches depth-first, pre-order.
	FindEntry(match func(Entry) bool) Entry

	setName(name string)
	setParent(parent *Directory)
}

// Container is the child-holding capability. Only Directory implements it.
type Container interface {
	Entry
	AddChild(child Entry) error
	RemoveChild(child Entry) error
	Children() []Entry
}

type base struct {
	id     int
	name   string
	parent *Directory
}

func (b *base) ID() int                { return b.id }
func (b *base) Name() string           { return b.name }
func (b *base) Parent() *Directory     { return b.parent }
func (b *base) setName(name string)    { b.name = name }
func (b *base) setParent(p *Directory) { b.parent = p }
func (b *base) Path() paths.Path       { return pathOf(b.name, b.parent) }
func (b *base) IdPath() paths.IdPath   { return idPathOf(b.id, b.parent) }

func pathOf(name string, parent *Directory) paths.Path {
	if parent == nil {
		return paths.NewPath(name)
	}
	return parent.Path().Appended(name)
}

func idPathOf(id int, parent *Directory) paths.IdPath {
	if parent == nil {
		return paths.NewIdPath(id)
	}
	return parent.IdPath().Appended(id)
}

// File is a leaf entry with text content.
type File struct {
	base
	content string
}

func NewFile(id int, name, content string) *File {
	return &File{base: base{id: id, name: name}, content: content}
}

func (f *File) Content() string   { return f.content }
func (f *File) IsDirectory() bool { return false }

func (f *File) Copy() Entry {
	return NewFile(f.id, f.name, f.content)
}

func (f *File) Renamed(name string) Entry {
	c := f.Copy()
	c.setName(name)
	return c
}

func (f *File) FindEntry(match func(Entry) bool) Entry {
	if match(f) {
		return f
	}
	return nil
}

// Directory owns an insertion-ordered list of children.
type Directory struct {
	base
	children []Entry
	root     bool
}

func NewDirectory(id int, name string) *Directory {
	return &Directory{base: base{id: id, name: name}}
}

func (d *Directory) IsDirectory() bool { return true }

// Path of the root directory is empty, so top-level entries get one-name paths.
func (d *Directory) Path() paths.Path {
	if d.root {
		return paths.Path{}
	}
	return pathOf(d.name, d.parent)
}

func (d *Directory) IdPath() paths.IdPath {
	if d.root {
		return paths.IdPath{}
	}
	return idPathOf(d.id, d.parent)
}

func (d *Directory) Copy() Entry {
	return d.copyDir()
}

func (d *Directory) copyDir() *Directory {
	c := &Directory{base: base{id: d.id, name: d.name}}
	c.children = make([]Entry, 0, len(d.children))
	for _, child := range d.children {
		cc := child.Copy()
		cc.setParent(c)
		c.children = append(c.children, cc)
	}
	return c
}

func (d *Directory) Renamed(name string) Entry {
	c := d.copyDir()
	c.name = name
	return c
}

func (d *Directory) FindEntry(match func(Entry) bool) Entry {
	if match(d) {
		return d
	}
	for _, child := range d.children {
		if found := child.FindEntry(match); found != nil {
			return found
		}
	}
	return nil
}

func (d *Directory) Children() []Entry {
	out := make([]Entry, len(d.children))
	copy(out, d.children)
	return out
}

// Child returns the child called name, or nil.
func (d *Directory) Child(name string) Entry {
	for _, c := range d.children {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// IndexOf returns the position of child among d's children, or -1.
func (d *Directory) IndexOf(child Entry) int {
	for i, c := range d.children {
		if c == child {
			return i
		}
	}
	return -1
}

func (d *Directory) AddChild(child Entry) error {
	return d.insertChild(child, -1)
}

func (d *Directory) RemoveChild(child Entry) error {
	i := d.IndexOf(child)
	if i < 0 {
		return errors.NotFound("%q is not a child of %q", child.Name(), d.Path().String())
	}
	d.children = append(d.children[:i], d.children[i+1:]...)
	child.setParent(nil)
	return nil
}

// insertChild attaches child at index; an out of range index appends.
func (d *Directory) insertChild(child Entry, index int) error {
	if child.Parent() != nil {
		return errors.StructuralViolation("%q is already attached to %q", child.Name(), child.Parent().Path().String())
	}
	if d.Child(child.Name()) != nil {
		return errors.StructuralViolation("%q already exists in %q", child.Name(), d.Path().String())
	}
	if index < 0 || index > len(d.children) {
		index = len(d.children)
	}
	d.children = append(d.children, nil)
	copy(d.children[index+1:], d.children[index:])
	d.children[index] = child
	child.setParent(d)
	return nil
}

// AddChild attaches child to e if e is a container.
func AddChild(e, child Entry) error {
	c, ok := e.(Container)
	if !ok {
		return errors.Unsupported("file %q cannot have children", e.Name())
	}
	return c.AddChild(child)
}

func RemoveChild(e, child Entry) error {
	c, ok := e.(Container)
	if !ok {
		return errors.Unsupported("file %q cannot have children", e.Name())
	}
	return c.RemoveChild(child)
}

func Children(e Entry) ([]Entry, error) {
	c, ok := e.(Container)
	if !ok {
		return nil, errors.Unsupported("file %q cannot have children", e.Name())
	}
	return c.Children(), nil
}

// Content returns a file's content, failing for directories.
func Content(e Entry) (string, error) {
	f, ok := e.(*File)
	if !ok {
		return "", errors.Unsupported("directory %q has no content", e.Name())
	}
	return f.Content(), nil
}

// Equal compares two subtrees by ids, names, content and child order.
func Equal(a, b Entry) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.ID() != b.ID() || a.Name() != b.Name() || a.IsDirectory() != b.IsDirectory() {
		return false
	}
	switch av := a.(type) {
	case *File:
		return av.content == b.(*File).content
	case *Directory:
		bv := b.(*Directory)
		if len(av.children) != len(bv.children) {
			return false
		}
		for i := range av.children {
			if !Equal(av.children[i], bv.children[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return errors.StructuralViolation("invalid entry name %q", name)
	}
	return nil
}
