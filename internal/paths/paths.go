// Package paths holds the two addressing schemes of the tracked tree: Path
// addresses an entry by names and follows renames, IdPath addresses it by
// stable ids and does not.
package paths

import (
	"slices"
	"strconv"
	"strings"
)

// Path is an immutable sequence of names from the root to a target.
// The zero value is the root itself.
type Path struct {
	names []string
}

// NewPath builds a Path from individual names.
func NewPath(names ...string) Path {
	return Path{names: slices.Clone(names)}
}

// Parse splits a slash separated string. Empty segments are dropped, so
// "/src//a.txt/" and "src/a.txt" are the same path.
func Parse(s string) Path {
	var names []string
	for _, n := range strings.Split(s, "/") {
		if n != "" {
			names = append(names, n)
		}
	}
	return Path{names: names}
}

func (p Path) Names() []string { return slices.Clone(p.names) }

func (p Path) Len() int { return len(p.names) }

func (p Path) IsRoot() bool { return len(p.names) == 0 }

// Name returns the last name, or "" for the root.
func (p Path) Name() string {
	if len(p.names) == 0 {
		return ""
	}
	return p.names[len(p.names)-1]
}

// Parent returns the path without its last name. The parent of the root is
// the root.
func (p Path) Parent() Path {
	if len(p.names) == 0 {
		return p
	}
	return Path{names: slices.Clone(p.names[:len(p.names)-1])}
}

// Appended returns a new path with name added at the end.
func (p Path) Appended(name string) Path {
	names := make([]string, len(p.names), len(p.names)+1)
	copy(names, p.names)
	return Path{names: append(names, name)}
}

// StartsWith reports whether prefix is an ancestor of, or equal to, p.
func (p Path) StartsWith(prefix Path) bool {
	if len(prefix.names) > len(p.names) {
		return false
	}
	return slices.Equal(p.names[:len(prefix.names)], prefix.names)
}

func (p Path) Equal(other Path) bool {
	return slices.Equal(p.names, other.names)
}

func (p Path) String() string {
	return strings.Join(p.names, "/")
}

// IdPath is an immutable sequence of entry ids from the root to a target.
type IdPath struct {
	ids []int
}

func NewIdPath(ids ...int) IdPath {
	return IdPath{ids: slices.Clone(ids)}
}

func (p IdPath) IDs() []int { return slices.Clone(p.ids) }

func (p IdPath) Len() int { return len(p.ids) }

// IsEmpty is true for the root and for an IdPath that was never captured.
func (p IdPath) IsEmpty() bool { return len(p.ids) == 0 }

// ID returns the id of the target, or 0 for an empty path.
func (p IdPath) ID() int {
	if len(p.ids) == 0 {
		return 0
	}
	return p.ids[len(p.ids)-1]
}

func (p IdPath) Parent() IdPath {
	if len(p.ids) == 0 {
		return p
	}
	return IdPath{ids: slices.Clone(p.ids[:len(p.ids)-1])}
}

func (p IdPath) Appended(id int) IdPath {
	ids := make([]int, len(p.ids), len(p.ids)+1)
	copy(ids, p.ids)
	return IdPath{ids: append(ids, id)}
}

func (p IdPath) StartsWith(prefix IdPath) bool {
	if len(prefix.ids) > len(p.ids) {
		return false
	}
	return slices.Equal(p.ids[:len(prefix.ids)], prefix.ids)
}

// Contains reports whether id appears anywhere in the chain.
func (p IdPath) Contains(id int) bool {
	return slices.Contains(p.ids, id)
}

func (p IdPath) Equal(other IdPath) bool {
	return slices.Equal(p.ids, other.ids)
}

func (p IdPath) String() string {
	parts := make([]string, len(p.ids))
	for i, id := range p.ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, "/")
}
