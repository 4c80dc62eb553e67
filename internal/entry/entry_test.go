package entry

import (
	stderrors "errors"
	"testing"

	"lvcs/internal/errors"
	"lvcs/internal/paths"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathsFollowParents(t *testing.T) {
	root := NewRoot()
	require.NoError(t, root.DoCreateDirectory(1, paths.Parse("src")))
	require.NoError(t, root.DoCreateFile(2, paths.Parse("src/a.txt"), "hi"))

	e, err := root.Entry(paths.Parse("src/a.txt"))
	require.NoError(t, err)

	assert.Equal(t, "src/a.txt", e.Path().String())
	assert.True(t, e.IdPath().Equal(paths.NewIdPath(1, 2)))
	assert.True(t, root.Directory().Path().IsRoot())
	assert.True(t, root.Directory().IdPath().IsEmpty())
}

func TestDetachedEntryPath(t *testing.T) {
	f := NewFile(5, "x.txt", "")
	assert.Equal(t, "x.txt", f.Path().String())
	assert.True(t, f.IdPath().Equal(paths.NewIdPath(5)))
}

func TestFileHasNoContainerCapability(t *testing.T) {
	f := NewFile(1, "a", "")

	_, isContainer := Entry(f).(Container)
	assert.False(t, isContainer)

	err := AddChild(f, NewFile(2, "b", ""))
	assert.True(t, stderrors.Is(err, errors.ErrUnsupported))

	err = RemoveChild(f, NewFile(2, "b", ""))
	assert.True(t, stderrors.Is(err, errors.ErrUnsupported))

	_, err = Children(f)
	assert.True(t, stderrors.Is(err, errors.ErrUnsupported))

	_, err = Content(NewDirectory(3, "d"))
	assert.True(t, stderrors.Is(err, errors.ErrUnsupported))
}

func TestDirectoryChildren(t *testing.T) {
	d := NewDirectory(1, "d")
	a := NewFile(2, "a", "")
	require.NoError(t, AddChild(d, a))
	require.NoError(t, d.AddChild(NewFile(3, "b", "")))

	err := d.AddChild(NewFile(4, "a", ""))
	assert.True(t, stderrors.Is(err, errors.ErrStructural))

	children, err := Children(d)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "a", children[0].Name())
	assert.Same(t, d, a.Parent())

	require.NoError(t, d.RemoveChild(a))
	assert.Nil(t, a.Parent())
	assert.Len(t, d.Children(), 1)

	err = d.RemoveChild(a)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
}

func TestCopyIsDeepAndDetached(t *testing.T) {
	d := NewDirectory(1, "d")
	require.NoError(t, d.AddChild(NewFile(2, "a", "hi")))

	c := d.Copy().(*Directory)
	assert.True(t, Equal(d, c))
	assert.Nil(t, c.Parent())
	assert.Same(t, c, c.Children()[0].Parent())

	require.NoError(t, c.AddChild(NewFile(3, "b", "")))
	assert.Len(t, d.Children(), 1)
	assert.False(t, Equal(d, c))
}

func TestRenamedLeavesReceiver(t *testing.T) {
	f := NewFile(1, "a", "x")
	r := f.Renamed("b")

	assert.Equal(t, "a", f.Name())
	assert.Equal(t, "b", r.Name())
	assert.Equal(t, 1, r.ID())
	assert.Equal(t, "x", r.(*File).Content())

	d := NewDirectory(2, "d")
	require.NoError(t, d.AddChild(NewFile(3, "c", "")))
	rd := d.Renamed("e").(*Directory)
	assert.Equal(t, "e", rd.Name())
	assert.Same(t, rd, rd.Children()[0].Parent())
}

func TestFindEntryIsPreOrder(t *testing.T) {
	d := NewDirectory(1, "d")
	sub := NewDirectory(2, "sub")
	require.NoError(t, d.AddChild(sub))
	require.NoError(t, sub.AddChild(NewFile(3, "x", "")))
	require.NoError(t, d.AddChild(NewFile(4, "x", "")))

	var visited []int
	d.FindEntry(func(e Entry) bool {
		visited = append(visited, e.ID())
		return false
	})
	assert.Equal(t, []int{1, 2, 3, 4}, visited)

	found := d.FindEntry(func(e Entry) bool { return e.Name() == "x" })
	assert.Equal(t, 3, found.ID())
	assert.Nil(t, d.FindEntry(func(e Entry) bool { return e.ID() == 9 }))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(NewFile(1, "a", "x"), NewFile(1, "a", "x")))
	assert.False(t, Equal(NewFile(1, "a", "x"), NewFile(1, "a", "y")))
	assert.False(t, Equal(NewFile(1, "a", "x"), NewFile(2, "a", "x")))
	assert.False(t, Equal(NewFile(1, "a", ""), NewDirectory(1, "a")))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(NewFile(1, "a", ""), nil))

	left, right := NewDirectory(1, "d"), NewDirectory(1, "d")
	require.NoError(t, left.AddChild(NewFile(2, "a", "")))
	require.NoError(t, left.AddChild(NewFile(3, "b", "")))
	require.NoError(t, right.AddChild(NewFile(3, "b", "")))
	require.NoError(t, right.AddChild(NewFile(2, "a", "")))
	assert.False(t, Equal(left, right), "child order is part of the tree")
}
