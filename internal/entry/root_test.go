package entry

import (
	"bytes"
	stderrors "errors"
	"testing"

	"lvcs/internal/errors"
	"lvcs/internal/paths"
	"lvcs/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot(t *testing.T) *Root {
	t.Helper()
	root := NewRoot()
	require.NoError(t, root.DoCreateDirectory(1, paths.Parse("src")))
	require.NoError(t, root.DoCreateFile(2, paths.Parse("src/a.txt"), "hi"))
	require.NoError(t, root.DoCreateDirectory(3, paths.Parse("docs")))
	require.NoError(t, root.DoCreateFile(4, paths.Parse("docs/readme"), "r"))
	return root
}

func TestCreatePreconditions(t *testing.T) {
	tests := []struct {
		name string
		do   func(r *Root) error
		kind error
	}{
		{"missing parent", func(r *Root) error { return r.DoCreateFile(10, paths.Parse("nope/a"), "") }, errors.ErrStructural},
		{"parent is a file", func(r *Root) error { return r.DoCreateFile(10, paths.Parse("src/a.txt/b"), "") }, errors.ErrStructural},
		{"name taken", func(r *Root) error { return r.DoCreateDirectory(10, paths.Parse("src/a.txt")) }, errors.ErrStructural},
		{"id taken", func(r *Root) error { return r.DoCreateFile(2, paths.Parse("src/b.txt"), "") }, errors.ErrStructural},
		{"root id", func(r *Root) error { return r.DoCreateFile(RootID, paths.Parse("b"), "") }, errors.ErrStructural},
		{"root path", func(r *Root) error { return r.DoCreateDirectory(10, paths.Path{}) }, errors.ErrStructural},
		{"bad name", func(r *Root) error { return r.DoCreateFile(10, paths.NewPath(".."), "") }, errors.ErrStructural},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newTestRoot(t)
			before := root.Copy()

			err := tt.do(root)
			assert.True(t, stderrors.Is(err, tt.kind), "got %v", err)
			assert.True(t, root.Equal(before), "failed create must not modify the tree")
		})
	}
}

func TestDeleteMissingPathIsNotFound(t *testing.T) {
	root := newTestRoot(t)
	before := root.Copy()

	err := root.DoDelete(paths.Parse("src/missing.txt"))

	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
	assert.True(t, root.Equal(before))
}

func TestDeleteRemovesSubtreeFromIndex(t *testing.T) {
	root := newTestRoot(t)

	require.NoError(t, root.DoDelete(paths.Parse("src")))

	assert.False(t, root.HasEntry(paths.Parse("src")))
	_, err := root.EntryByID(2)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
	assert.Equal(t, 2, root.Len())

	// ids are free again for DoInsert of the same subtree
	require.NoError(t, root.DoCreateFile(2, paths.Parse("docs/again"), ""))
}

func TestRenameKeepsIdentity(t *testing.T) {
	root := newTestRoot(t)
	e, err := root.Entry(paths.Parse("src/a.txt"))
	require.NoError(t, err)
	idp := e.IdPath()

	require.NoError(t, root.DoRename(paths.Parse("src/a.txt"), "b.txt"))
	require.NoError(t, root.DoRename(paths.Parse("src"), "lib"))

	assert.Equal(t, "lib/b.txt", e.Path().String())
	assert.True(t, e.IdPath().Equal(idp))

	got, err := root.EntryByIdPath(idp)
	require.NoError(t, err)
	assert.Same(t, e, got)

	err = root.DoRename(paths.Parse("lib/b.txt"), "")
	assert.True(t, stderrors.Is(err, errors.ErrStructural))
	require.NoError(t, root.DoRename(paths.Parse("lib/b.txt"), "b.txt"))
}

func TestRenameToExistingSibling(t *testing.T) {
	root := newTestRoot(t)
	err := root.DoRename(paths.Parse("src"), "docs")
	assert.True(t, stderrors.Is(err, errors.ErrStructural))
}

func TestMove(t *testing.T) {
	root := newTestRoot(t)
	e, err := root.Entry(paths.Parse("src/a.txt"))
	require.NoError(t, err)

	require.NoError(t, root.DoMove(paths.Parse("src/a.txt"), paths.Parse("docs")))

	assert.Equal(t, "docs/a.txt", e.Path().String())
	assert.True(t, e.IdPath().Equal(paths.NewIdPath(3, 2)))
	assert.Equal(t, "hi", e.(*File).Content())
	assert.Equal(t, 1, e.Parent().IndexOf(e))

	require.NoError(t, root.DoMoveTo(paths.Parse("docs/a.txt"), paths.Parse("docs"), 0))
	assert.Equal(t, 0, e.Parent().IndexOf(e))
}

func TestMoveRejections(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		kind     error
	}{
		{"into itself", "src", "src", errors.ErrStructural},
		{"into file", "docs", "src/a.txt", errors.ErrStructural},
		{"missing target", "nope", "docs", errors.ErrNotFound},
		{"missing parent", "src", "nope", errors.ErrStructural},
		{"root", "", "docs", errors.ErrStructural},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newTestRoot(t)
			before := root.Copy()
			err := root.DoMove(paths.Parse(tt.from), paths.Parse(tt.to))
			assert.True(t, stderrors.Is(err, tt.kind), "got %v", err)
			assert.True(t, root.Equal(before))
		})
	}

	t.Run("into descendant", func(t *testing.T) {
		root := newTestRoot(t)
		require.NoError(t, root.DoCreateDirectory(5, paths.Parse("src/sub")))
		err := root.DoMove(paths.Parse("src"), paths.Parse("src/sub"))
		assert.True(t, stderrors.Is(err, errors.ErrStructural))
	})

	t.Run("name clash", func(t *testing.T) {
		root := newTestRoot(t)
		require.NoError(t, root.DoCreateFile(5, paths.Parse("docs/a.txt"), ""))
		err := root.DoMove(paths.Parse("src/a.txt"), paths.Parse("docs"))
		assert.True(t, stderrors.Is(err, errors.ErrStructural))
	})
}

func TestChangeContent(t *testing.T) {
	root := newTestRoot(t)

	require.NoError(t, root.DoChangeContent(paths.Parse("src/a.txt"), "bye"))
	e, _ := root.Entry(paths.Parse("src/a.txt"))
	assert.Equal(t, "bye", e.(*File).Content())

	err := root.DoChangeContent(paths.Parse("src"), "x")
	assert.True(t, stderrors.Is(err, errors.ErrStructural))
}

func TestInsertRestoresAtIndex(t *testing.T) {
	root := newTestRoot(t)
	src, _ := root.Entry(paths.Parse("src"))
	saved := src.Copy()
	index := root.Directory().IndexOf(src)
	before := root.Copy()

	require.NoError(t, root.DoDelete(paths.Parse("src")))
	require.NoError(t, root.DoInsert(paths.Path{}, saved, index))

	assert.True(t, root.Equal(before))
	got, err := root.EntryByID(2)
	require.NoError(t, err)
	assert.Equal(t, "src/a.txt", got.Path().String())

	err = root.DoInsert(paths.Parse("docs"), NewFile(4, "dup-id", ""), -1)
	assert.True(t, stderrors.Is(err, errors.ErrStructural))
}

func TestInsertRejectsRepeatedIDsWithinSubtree(t *testing.T) {
	root := newTestRoot(t)
	before := root.Copy()

	sub := NewDirectory(5, "lib")
	require.NoError(t, sub.AddChild(NewFile(6, "a", "")))
	require.NoError(t, sub.AddChild(NewFile(6, "b", "")))

	err := root.DoInsert(paths.Path{}, sub, -1)

	assert.True(t, stderrors.Is(err, errors.ErrStructural), "got %v", err)
	assert.True(t, root.Equal(before))
	assert.Equal(t, before.Len(), root.Len())
	assert.Nil(t, sub.Parent())
}

func TestRenamedRootDirectoryIsDetached(t *testing.T) {
	root := newTestRoot(t)

	renamed := root.Directory().Renamed("top")

	assert.Equal(t, "top", renamed.Path().String())
	assert.True(t, paths.NewIdPath(RootID).Equal(renamed.IdPath()))
	assert.Equal(t, "", root.Directory().Path().String())
}

func TestRootCopyIsIndependent(t *testing.T) {
	root := newTestRoot(t)
	c := root.Copy()

	require.NoError(t, c.DoDelete(paths.Parse("docs")))

	assert.True(t, root.HasEntry(paths.Parse("docs/readme")))
	_, err := root.EntryByID(4)
	assert.NoError(t, err)
	assert.False(t, root.Equal(c))
}

func TestSnapshotRoundTrip(t *testing.T) {
	root := newTestRoot(t)

	var buf bytes.Buffer
	require.NoError(t, WriteRoot(stream.NewWriter(&buf), root))

	got, err := ReadRoot(stream.NewReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)

	assert.True(t, root.Equal(got))
	e, err := got.EntryByID(2)
	require.NoError(t, err)
	assert.Equal(t, "src/a.txt", e.Path().String())

	var again bytes.Buffer
	require.NoError(t, WriteRoot(stream.NewWriter(&again), got))
	assert.Equal(t, buf.Bytes(), again.Bytes())
}

func TestReadRejectsMalformedRecords(t *testing.T) {
	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	w.WriteInteger(7)
	w.WriteInteger(1)
	w.WriteString("x")

	_, err := Read(stream.NewReader(&buf))
	assert.True(t, stderrors.Is(err, errors.ErrMalformed))

	buf.Reset()
	w = stream.NewWriter(&buf)
	w.WriteInteger(directoryTag)
	w.WriteInteger(RootID)
	w.WriteString("")
	w.WriteCount(2)
	Write(w, NewFile(1, "a", ""))
	Write(w, NewFile(1, "b", ""))

	_, err = ReadRoot(stream.NewReader(&buf))
	assert.True(t, stderrors.Is(err, errors.ErrMalformed), "duplicate ids: %v", err)

	_, err = ReadRoot(stream.NewReader(bytes.NewReader(nil)))
	assert.True(t, stderrors.Is(err, errors.ErrMalformed))
}

func TestString(t *testing.T) {
	root := newTestRoot(t)
	assert.Equal(t, "src/  #1\n  a.txt  #2\ndocs/  #3\n  readme  #4\n", String(root.Directory()))
}

func TestWalkIsPreOrder(t *testing.T) {
	root := newTestRoot(t)

	var seen []string
	require.NoError(t, root.Walk(func(e Entry) error {
		seen = append(seen, e.Path().String())
		return nil
	}))
	assert.Equal(t, []string{"src", "src/a.txt", "docs", "docs/readme"}, seen)

	stop := stderrors.New("stop")
	count := 0
	err := root.Walk(func(e Entry) error {
		count++
		return stop
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 1, count)
}
