package change

import (
	"fmt"

	"lvcs/internal/entry"
	"lvcs/internal/errors"
	"lvcs/internal/paths"
)

// ChangeSet is a closed, labeled, ordered group of changes. Its change list
// cannot be modified after construction; the changes themselves still carry
// the state captured by the last apply.
type ChangeSet struct {
	label   string
	changes []Change
}

// New builds a closed change set. An empty label means no label.
func New(label string, changes ...Change) *ChangeSet {
	cs := &ChangeSet{label: label, changes: make([]Change, len(changes))}
	copy(cs.changes, changes)
	return cs
}

func (cs *ChangeSet) Label() string { return cs.label }

func (cs *ChangeSet) Len() int { return len(cs.changes) }

// Changes returns the changes in recorded order.
func (cs *ChangeSet) Changes() []Change {
	out := make([]Change, len(cs.changes))
	copy(out, cs.changes)
	return out
}

// ApplyTo applies the changes in recorded order and stops at the first
// failure. Changes applied before the failure stay applied; callers that
// need atomicity copy the root first.
func (cs *ChangeSet) ApplyTo(root *entry.Root) error {
	for i, c := range cs.changes {
		if err := c.ApplyTo(root); err != nil {
			return fmt.Errorf("applying change %d (%s): %w", i, c, err)
		}
	}
	return nil
}

// RevertOn reverts the changes in reverse order. The set must have been
// fully applied to this tree state.
func (cs *ChangeSet) RevertOn(root *entry.Root) error {
	for i := len(cs.changes) - 1; i >= 0; i-- {
		c := cs.changes[i]
		if err := c.RevertOn(root); err != nil {
			return fmt.Errorf("reverting change %d (%s): %w", i, c, err)
		}
	}
	return nil
}

// ChangesFor returns, in recorded order, the changes that affect e.
func (cs *ChangeSet) ChangesFor(e entry.Entry) []Change {
	var result []Change
	for _, c := range cs.changes {
		if c.Affects(e) {
			result = append(result, c)
		}
	}
	return result
}

// IDAllocator hands out entry ids. Ids must be unique and never reused.
type IDAllocator interface {
	NextID() (int, error)
}

// Builder is the open phase of a change set: edits are appended while they
// are recorded, then Close seals them.
type Builder struct {
	label   string
	changes []Change
	ids     IDAllocator
	closed  bool
}

// NewBuilder returns a builder that takes ids for created entries from ids.
// ids may be nil if the builder is only fed through Add.
func NewBuilder(ids IDAllocator) *Builder {
	return &Builder{ids: ids}
}

func (b *Builder) SetLabel(label string) { b.label = label }

func (b *Builder) Len() int { return len(b.changes) }

func (b *Builder) Add(c Change) error {
	if b.closed {
		return errors.StructuralViolation("change set %q is closed", b.label)
	}
	b.changes = append(b.changes, c)
	return nil
}

func (b *Builder) CreateFile(p paths.Path, content string) (int, error) {
	id, err := b.nextID()
	if err != nil {
		return 0, err
	}
	return id, b.Add(NewCreateFile(id, p, content))
}

func (b *Builder) CreateDirectory(p paths.Path) (int, error) {
	id, err := b.nextID()
	if err != nil {
		return 0, err
	}
	return id, b.Add(NewCreateDirectory(id, p))
}

func (b *Builder) ChangeContent(p paths.Path, content string) error {
	return b.Add(NewContentChange(p, content))
}

func (b *Builder) Rename(p paths.Path, newName string) error {
	return b.Add(NewRename(p, newName))
}

func (b *Builder) Move(p, newParent paths.Path) error {
	return b.Add(NewMove(p, newParent))
}

func (b *Builder) Delete(p paths.Path) error {
	return b.Add(NewDelete(p))
}

// Close seals the builder and returns the change set.
func (b *Builder) Close() *ChangeSet {
	b.closed = true
	return New(b.label, b.changes...)
}

func (b *Builder) nextID() (int, error) {
	if b.closed {
		return 0, errors.StructuralViolation("change set %q is closed", b.label)
	}
	if b.ids == nil {
		return 0, errors.StructuralViolation("no id allocator for created entries")
	}
	id, err := b.ids.NextID()
	if err != nil {
		return 0, fmt.Errorf("allocating id: %w", err)
	}
	return id, nil
}
