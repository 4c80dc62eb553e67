package change

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"math/rand"
	"testing"

	"lvcs/internal/entry"
	"lvcs/internal/errors"
	"lvcs/internal/paths"
	"lvcs/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct{ next int }

func (c *counter) NextID() (int, error) {
	c.next++
	return c.next, nil
}

func TestCreateAndRevertScenario(t *testing.T) {
	root := entry.NewRoot()
	cs := New("edit1",
		NewCreateDirectory(1, p("src")),
		NewCreateFile(2, p("src/a.txt"), "hi"),
	)

	require.NoError(t, cs.ApplyTo(root))

	children := root.Children()
	require.Len(t, children, 1)
	assert.Equal(t, "src", children[0].Name())
	assert.True(t, children[0].IsDirectory())
	files, err := entry.Children(children[0])
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].Name())
	assert.Equal(t, "hi", files[0].(*entry.File).Content())

	require.NoError(t, cs.RevertOn(root))
	assert.Empty(t, root.Children())
	assert.Equal(t, 0, root.Len())
}

func TestRevertAfterRenameResolvesById(t *testing.T) {
	root := entry.NewRoot()
	first := New("create", NewCreateFile(2, p("a.txt"), ""))
	second := New("rename", NewRename(p("a.txt"), "b.txt"))

	require.NoError(t, first.ApplyTo(root))
	require.NoError(t, second.ApplyTo(root))
	require.NoError(t, second.RevertOn(root))

	e, err := root.EntryByID(2)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", e.Path().String())
}

func TestChangesFor(t *testing.T) {
	root := entry.NewRoot()
	create := NewCreateFile(1, p("f1"), "")
	rename := NewRename(p("f1"), "f1-renamed")
	content := NewContentChange(p("f2"), "x")
	require.NoError(t, root.DoCreateFile(2, p("f2"), ""))

	cs := New("", create, rename, content)
	require.NoError(t, cs.ApplyTo(root))

	f1, err := root.EntryByID(1)
	require.NoError(t, err)

	got := cs.ChangesFor(f1)
	require.Len(t, got, 2)
	assert.Same(t, create, got[0])
	assert.Same(t, rename, got[1])
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	root := entry.NewRoot()
	cs := New("broken",
		NewCreateFile(1, p("a"), ""),
		NewCreateFile(2, p("missing/b"), ""),
		NewCreateFile(3, p("c"), ""),
	)

	err := cs.ApplyTo(root)

	assert.True(t, stderrors.Is(err, errors.ErrStructural))
	assert.Contains(t, err.Error(), "applying change 1")
	assert.True(t, root.HasEntry(p("a")), "changes before the failure stay applied")
	assert.False(t, root.HasEntry(p("c")))
}

func TestChangeSetIsImmutable(t *testing.T) {
	changes := []Change{NewCreateFile(1, p("a"), "")}
	cs := New("label", changes...)

	changes[0] = NewDelete(p("a"))
	cs.Changes()[0] = NewDelete(p("a"))

	assert.Equal(t, KindCreateFile, cs.Changes()[0].Kind())
	assert.Equal(t, "label", cs.Label())
	assert.Equal(t, 1, cs.Len())
}

func TestBuilder(t *testing.T) {
	b := NewBuilder(&counter{})
	b.SetLabel("save")

	dirID, err := b.CreateDirectory(p("src"))
	require.NoError(t, err)
	fileID, err := b.CreateFile(p("src/a.go"), "package a")
	require.NoError(t, err)
	require.NoError(t, b.ChangeContent(p("src/a.go"), "package b"))
	require.NoError(t, b.Rename(p("src/a.go"), "b.go"))
	require.NoError(t, b.Move(p("src/b.go"), paths.Path{}))
	require.NoError(t, b.Delete(p("src")))
	assert.Equal(t, 6, b.Len())
	assert.Equal(t, 1, dirID)
	assert.Equal(t, 2, fileID)

	cs := b.Close()
	assert.Equal(t, "save", cs.Label())

	root := entry.NewRoot()
	require.NoError(t, cs.ApplyTo(root))
	e, err := root.Entry(p("b.go"))
	require.NoError(t, err)
	assert.Equal(t, 2, e.ID())
	assert.Equal(t, "package b", e.(*entry.File).Content())

	err = b.Delete(p("b.go"))
	assert.True(t, stderrors.Is(err, errors.ErrStructural))
	_, err = b.CreateFile(p("c"), "")
	assert.True(t, stderrors.Is(err, errors.ErrStructural))
	assert.Equal(t, 6, cs.Len())
}

func TestBuilderWithoutAllocator(t *testing.T) {
	b := NewBuilder(nil)
	_, err := b.CreateFile(p("a"), "")
	assert.True(t, stderrors.Is(err, errors.ErrStructural))
	require.NoError(t, b.Add(NewCreateFile(7, p("a"), "")))
	assert.Equal(t, 1, b.Close().Len())
}

// randomChangeSet records n valid changes against root, applying each one as
// it is recorded so the next choice sees the current tree.
func randomChangeSet(t *testing.T, rng *rand.Rand, root *entry.Root, ids *counter, n int) *ChangeSet {
	t.Helper()
	fresh := func() string { return fmt.Sprintf("n%d", rng.Int63()) }

	var changes []Change
	for len(changes) < n {
		var all, dirs, files []entry.Entry
		dirs = append(dirs, root.Directory())
		root.Directory().FindEntry(func(e entry.Entry) bool {
			if e.Parent() == nil {
				return false
			}
			all = append(all, e)
			if e.IsDirectory() {
				dirs = append(dirs, e)
			} else {
				files = append(files, e)
			}
			return false
		})

		var c Change
		switch op := rng.Intn(6); {
		case op == 0 || len(all) == 0:
			id, _ := ids.NextID()
			c = NewCreateFile(id, dirs[rng.Intn(len(dirs))].Path().Appended(fresh()), fresh())
		case op == 1:
			id, _ := ids.NextID()
			c = NewCreateDirectory(id, dirs[rng.Intn(len(dirs))].Path().Appended(fresh()))
		case op == 2 && len(files) > 0:
			c = NewContentChange(files[rng.Intn(len(files))].Path(), fresh())
		case op == 3:
			c = NewRename(all[rng.Intn(len(all))].Path(), fresh())
		case op == 4:
			e := all[rng.Intn(len(all))]
			d := dirs[rng.Intn(len(dirs))]
			if d.Parent() != nil && d.IdPath().StartsWith(e.IdPath()) {
				continue
			}
			c = NewMove(e.Path(), d.Path())
		case op == 5 && rng.Intn(3) == 0:
			c = NewDelete(all[rng.Intn(len(all))].Path())
		default:
			continue
		}
		require.NoError(t, c.ApplyTo(root), c.String())
		changes = append(changes, c)
	}
	return New(fmt.Sprintf("random-%d", n), changes...)
}

func TestRandomSequencesRevertToStart(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := &counter{}
	root := entry.NewRoot()
	var sets []*ChangeSet
	var states []*entry.Root

	for i := 0; i < 20; i++ {
		states = append(states, root.Copy())
		identities := map[int]bool{}
		root.Directory().FindEntry(func(e entry.Entry) bool {
			identities[e.ID()] = e.IsDirectory()
			return false
		})

		cs := randomChangeSet(t, rng, root, ids, 1+rng.Intn(15))
		sets = append(sets, cs)

		// surviving entries keep their id and variant
		root.Directory().FindEntry(func(e entry.Entry) bool {
			if isDir, ok := identities[e.ID()]; ok {
				assert.Equal(t, isDir, e.IsDirectory())
			}
			return false
		})
	}

	for i := len(sets) - 1; i >= 0; i-- {
		require.NoError(t, sets[i].RevertOn(root))
		require.True(t, root.Equal(states[i]), "state after reverting set %d", i)
	}
	assert.Empty(t, root.Children())
}

func TestReplayingDecodedSetsRebuildsTree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := &counter{}
	live := entry.NewRoot()

	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	const sets = 10
	for i := 0; i < sets; i++ {
		cs := randomChangeSet(t, rng, live, ids, 10)
		require.NoError(t, WriteChangeSet(w, cs))
	}

	replayed := entry.NewRoot()
	r := stream.NewReader(&buf)
	for i := 0; i < sets; i++ {
		cs, err := ReadChangeSet(r)
		require.NoError(t, err)
		require.NoError(t, cs.ApplyTo(replayed))
	}
	assert.True(t, live.Equal(replayed))
}
