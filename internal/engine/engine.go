// Package engine is the surface external collaborators use to drive the
// tree: apply and revert change sets, look entries up, and ask which changes
// touched an entry.
package engine

import (
	"fmt"

	"lvcs/internal/change"
	"lvcs/internal/entry"
	"lvcs/internal/paths"
)

// ApplyChangeSet applies cs to root in recorded order. On failure root is
// left partially applied.
func ApplyChangeSet(root *entry.Root, cs *change.ChangeSet) error {
	if err := cs.ApplyTo(root); err != nil {
		return fmt.Errorf("apply change set %q: %w", cs.Label(), err)
	}
	return nil
}

// RevertChangeSet reverts a change set previously applied to root.
func RevertChangeSet(root *entry.Root, cs *change.ChangeSet) error {
	if err := cs.RevertOn(root); err != nil {
		return fmt.Errorf("revert change set %q: %w", cs.Label(), err)
	}
	return nil
}

// LookupByPath resolves p by names; ok is false if it does not resolve.
func LookupByPath(root *entry.Root, p paths.Path) (entry.Entry, bool) {
	e, err := root.Entry(p)
	return e, err == nil
}

// LookupByID resolves an id path; ok is false if it does not resolve.
func LookupByID(root *entry.Root, p paths.IdPath) (entry.Entry, bool) {
	e, err := root.EntryByIdPath(p)
	return e, err == nil
}

func ChangesAffecting(cs *change.ChangeSet, e entry.Entry) []change.Change {
	return cs.ChangesFor(e)
}
