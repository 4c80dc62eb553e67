// Package change records reversible tree mutations. Apply addresses its
// target by the Path valid when the change runs; revert addresses it by the
// IdPath captured during apply, which survives later renames and moves.
package change

import (
	"fmt"

	"lvcs/internal/entry"
	"lvcs/internal/errors"
	"lvcs/internal/paths"
)

// Kind identifies a change variant. Values double as record tags.
type Kind int

const (
	KindCreateFile Kind = iota + 1
	KindCreateDirectory
	KindContentChange
	KindRename
	KindMove
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindCreateFile:
		return "create-file"
	case KindCreateDirectory:
		return "create-directory"
	case KindContentChange:
		return "change-content"
	case KindRename:
		return "rename"
	case KindMove:
		return "move"
	case KindDelete:
		return "delete"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Change is one reversible mutation. The set of variants is closed: every
// implementation lives in this package.
type Change interface {
	Kind() Kind
	// Path is the target as addressed when the change was recorded.
	Path() paths.Path
	ApplyTo(root *entry.Root) error
	// RevertOn undoes the last ApplyTo. It fails if the change was not applied.
	RevertOn(root *entry.Root) error
	// AffectedIdPath is captured by ApplyTo; empty before the first apply.
	AffectedIdPath() paths.IdPath
	// Affects reports whether e is the affected entry or one of its descendants.
	Affects(e entry.Entry) bool
	String() string

	isChange()
}

// capture holds what apply learned about the tree.
type capture struct {
	affected paths.IdPath
	applied  bool
}

func (c *capture) isChange() {}

func (c *capture) AffectedIdPath() paths.IdPath { return c.affected }

func (c *capture) Affects(e entry.Entry) bool {
	if c.affected.IsEmpty() {
		return false
	}
	return e.IdPath().StartsWith(c.affected)
}

func (c *capture) done(affected paths.IdPath) {
	c.affected = affected
	c.applied = true
}

// target locates the affected entry for revert.
func (c *capture) target(root *entry.Root, what string) (entry.Entry, error) {
	if !c.applied {
		return nil, errors.StructuralViolation("cannot revert %s: change was not applied", what)
	}
	return root.EntryByIdPath(c.affected)
}

// attached resolves p and its parent, refusing the root.
func attached(root *entry.Root, p paths.Path) (entry.Entry, *entry.Directory, error) {
	e, err := root.Entry(p)
	if err != nil {
		return nil, nil, err
	}
	if e.Parent() == nil {
		return nil, nil, errors.StructuralViolation("the root cannot be changed")
	}
	return e, e.Parent(), nil
}

type CreateFile struct {
	capture
	id      int
	path    paths.Path
	content string
}

func NewCreateFile(id int, p paths.Path, content string) *CreateFile {
	return &CreateFile{id: id, path: p, content: content}
}

func (c *CreateFile) Kind() Kind       { return KindCreateFile }
func (c *CreateFile) Path() paths.Path { return c.path }
func (c *CreateFile) ID() int          { return c.id }
func (c *CreateFile) Content() string  { return c.content }

func (c *CreateFile) ApplyTo(root *entry.Root) error {
	if err := root.DoCreateFile(c.id, c.path, c.content); err != nil {
		return err
	}
	e, err := root.Entry(c.path)
	if err != nil {
		return err
	}
	c.done(e.IdPath())
	return nil
}

// RevertOn deletes at the recorded path: changes recorded later have been
// reverted already, so the entry is back where it was created.
func (c *CreateFile) RevertOn(root *entry.Root) error {
	if !c.applied {
		return errors.StructuralViolation("cannot revert %s: change was not applied", c)
	}
	if err := root.DoDelete(c.path); err != nil {
		return err
	}
	c.applied = false
	return nil
}

func (c *CreateFile) String() string {
	return fmt.Sprintf("create file %s #%d", c.path, c.id)
}

type CreateDirectory struct {
	capture
	id   int
	path paths.Path
}

func NewCreateDirectory(id int, p paths.Path) *CreateDirectory {
	return &CreateDirectory{id: id, path: p}
}

func (c *CreateDirectory) Kind() Kind       { return KindCreateDirectory }
func (c *CreateDirectory) Path() paths.Path { return c.path }
func (c *CreateDirectory) ID() int          { return c.id }

func (c *CreateDirectory) ApplyTo(root *entry.Root) error {
	if err := root.DoCreateDirectory(c.id, c.path); err != nil {
		return err
	}
	e, err := root.Entry(c.path)
	if err != nil {
		return err
	}
	c.done(e.IdPath())
	return nil
}

func (c *CreateDirectory) RevertOn(root *entry.Root) error {
	if !c.applied {
		return errors.StructuralViolation("cannot revert %s: change was not applied", c)
	}
	if err := root.DoDelete(c.path); err != nil {
		return err
	}
	c.applied = false
	return nil
}

func (c *CreateDirectory) String() string {
	return fmt.Sprintf("create directory %s #%d", c.path, c.id)
}

type ContentChange struct {
	capture
	path       paths.Path
	content    string
	oldContent string
}

func NewContentChange(p paths.Path, content string) *ContentChange {
	return &ContentChange{path: p, content: content}
}

func (c *ContentChange) Kind() Kind       { return KindContentChange }
func (c *ContentChange) Path() paths.Path { return c.path }
func (c *ContentChange) Content() string  { return c.content }

// OldContent is the content replaced by the last apply.
func (c *ContentChange) OldContent() string { return c.oldContent }

func (c *ContentChange) ApplyTo(root *entry.Root) error {
	e, err := root.Entry(c.path)
	if err != nil {
		return err
	}
	var old string
	if f, ok := e.(*entry.File); ok {
		old = f.Content()
	}
	if err := root.DoChangeContent(c.path, c.content); err != nil {
		return err
	}
	c.oldContent = old
	c.done(e.IdPath())
	return nil
}

func (c *ContentChange) RevertOn(root *entry.Root) error {
	e, err := c.target(root, c.String())
	if err != nil {
		return err
	}
	if err := root.DoChangeContent(e.Path(), c.oldContent); err != nil {
		return err
	}
	c.applied = false
	return nil
}

func (c *ContentChange) String() string {
	return fmt.Sprintf("change content of %s", c.path)
}

type Rename struct {
	capture
	path    paths.Path
	newName string
	oldName string
}

func NewRename(p paths.Path, newName string) *Rename {
	return &Rename{path: p, newName: newName}
}

func (c *Rename) Kind() Kind       { return KindRename }
func (c *Rename) Path() paths.Path { return c.path }
func (c *Rename) NewName() string  { return c.newName }

func (c *Rename) ApplyTo(root *entry.Root) error {
	e, _, err := attached(root, c.path)
	if err != nil {
		return err
	}
	old := e.Name()
	if err := root.DoRename(c.path, c.newName); err != nil {
		return err
	}
	c.oldName = old
	c.done(e.IdPath())
	return nil
}

func (c *Rename) RevertOn(root *entry.Root) error {
	e, err := c.target(root, c.String())
	if err != nil {
		return err
	}
	if err := root.DoRename(e.Path(), c.oldName); err != nil {
		return err
	}
	c.applied = false
	return nil
}

func (c *Rename) String() string {
	return fmt.Sprintf("rename %s to %s", c.path, c.newName)
}

type Move struct {
	capture
	path      paths.Path
	newParent paths.Path
	oldParent paths.IdPath
	oldIndex  int
}

func NewMove(p, newParent paths.Path) *Move {
	return &Move{path: p, newParent: newParent}
}

func (c *Move) Kind() Kind            { return KindMove }
func (c *Move) Path() paths.Path      { return c.path }
func (c *Move) NewParent() paths.Path { return c.newParent }

func (c *Move) ApplyTo(root *entry.Root) error {
	e, parent, err := attached(root, c.path)
	if err != nil {
		return err
	}
	oldParent, oldIndex := parent.IdPath(), parent.IndexOf(e)
	if err := root.DoMove(c.path, c.newParent); err != nil {
		return err
	}
	c.oldParent, c.oldIndex = oldParent, oldIndex
	c.done(e.IdPath())
	return nil
}

func (c *Move) RevertOn(root *entry.Root) error {
	e, err := c.target(root, c.String())
	if err != nil {
		return err
	}
	parent, err := root.EntryByIdPath(c.oldParent)
	if err != nil {
		return err
	}
	if err := root.DoMoveTo(e.Path(), parent.Path(), c.oldIndex); err != nil {
		return err
	}
	c.applied = false
	return nil
}

func (c *Move) String() string {
	return fmt.Sprintf("move %s to %s/", c.path, c.newParent)
}

type Delete struct {
	capture
	path    paths.Path
	removed entry.Entry
	parent  paths.IdPath
	index   int
}

func NewDelete(p paths.Path) *Delete {
	return &Delete{path: p}
}

func (c *Delete) Kind() Kind       { return KindDelete }
func (c *Delete) Path() paths.Path { return c.path }

// Removed is a detached copy of the subtree the last apply deleted.
func (c *Delete) Removed() entry.Entry { return c.removed }

func (c *Delete) ApplyTo(root *entry.Root) error {
	e, parent, err := attached(root, c.path)
	if err != nil {
		return err
	}
	removed, parentIdPath, index, affected := e.Copy(), parent.IdPath(), parent.IndexOf(e), e.IdPath()
	if err := root.DoDelete(c.path); err != nil {
		return err
	}
	c.removed, c.parent, c.index = removed, parentIdPath, index
	c.done(affected)
	return nil
}

func (c *Delete) RevertOn(root *entry.Root) error {
	if !c.applied {
		return errors.StructuralViolation("cannot revert %s: change was not applied", c)
	}
	parent, err := root.EntryByIdPath(c.parent)
	if err != nil {
		return err
	}
	if err := root.DoInsert(parent.Path(), c.removed.Copy(), c.index); err != nil {
		return err
	}
	c.applied = false
	return nil
}

func (c *Delete) String() string {
	return fmt.Sprintf("delete %s", c.path)
}
