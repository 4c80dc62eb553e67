package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lvcs/internal/entry"
	"lvcs/internal/errors"
	"lvcs/internal/history"
	"lvcs/internal/paths"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHistory(t *testing.T) *history.History {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h, err := history.Open(context.Background(), db, history.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	b := h.NewBuilder()
	b.SetLabel("init")
	_, err = b.CreateDirectory(paths.Parse("src"))
	require.NoError(t, err)
	_, err = b.CreateFile(paths.Parse("src/main.go"), "package main\n")
	require.NoError(t, err)
	_, err = h.Record(context.Background(), b.Close())
	require.NoError(t, err)

	b = h.NewBuilder()
	require.NoError(t, b.ChangeContent(paths.Parse("src/main.go"), "package main\n\nfunc main() {}\n"))
	_, err = h.Record(context.Background(), b.Close())
	require.NoError(t, err)
	return h
}

func serve(t *testing.T, box Box, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	NewHistoryHandler(box, nil).Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, setupHistory(t), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","revision":2}`, rec.Body.String())
}

func TestRevisions(t *testing.T) {
	rec := serve(t, setupHistory(t), "/api/revisions")
	require.Equal(t, http.StatusOK, rec.Code)

	var revs []history.Revision
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&revs))
	require.Len(t, revs, 2)
	assert.Equal(t, "init", revs[0].Label)
	assert.Equal(t, 2, revs[0].Changes)
	assert.Equal(t, 2, revs[1].Revision)
}

func TestTree(t *testing.T) {
	h := setupHistory(t)

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"whole tree", "/api/revisions/1/tree", http.StatusOK},
		{"subtree", "/api/revisions/2/tree?path=src/main.go", http.StatusOK},
		{"empty revision", "/api/revisions/0/tree", http.StatusOK},
		{"unknown revision", "/api/revisions/9/tree", http.StatusNotFound},
		{"unknown path", "/api/revisions/1/tree?path=nope", http.StatusNotFound},
		{"bad revision", "/api/revisions/abc/tree", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	rec := serve(t, h, "/api/revisions/1/tree")
	var root Node
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&root))
	assert.Equal(t, "directory", root.Type)
	require.Len(t, root.Children, 1)
	src := root.Children[0]
	assert.Equal(t, "src", src.Path)
	require.Len(t, src.Children, 1)
	assert.Equal(t, "src/main.go", src.Children[0].Path)
	assert.Equal(t, "package main\n", src.Children[0].Content)
}

func TestHistory(t *testing.T) {
	h := setupHistory(t)

	rec := serve(t, h, "/api/history?path=src/main.go")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []ChangeView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 2)
	assert.Equal(t, "create-file", views[0].Kind)
	assert.Equal(t, "content-change", views[1].Kind)
	assert.Equal(t, 2, views[1].Revision)

	assert.Equal(t, http.StatusBadRequest, serve(t, h, "/api/history").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, h, "/api/history?path=missing").Code)
}

func TestDiff(t *testing.T) {
	h := setupHistory(t)

	rec := serve(t, h, "/api/diff?path=src/main.go&from=1&to=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Diff  string `json:"diff"`
		Stats struct {
			Additions int `json:"Additions"`
		} `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Stats.Additions)
	assert.Contains(t, body.Diff, "+func main() {}")

	// the file does not exist at revision 0
	rec = serve(t, h, "/api/diff?path=src/main.go&from=0&to=1")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusBadRequest, serve(t, h, "/api/diff?path=src/main.go&from=x&to=1").Code)
	assert.Equal(t, http.StatusConflict, serve(t, h, "/api/diff?path=src&from=1&to=2").Code)
}

type failingBox struct{}

func (failingBox) Revision() int { return 0 }
func (failingBox) List() ([]history.Revision, error) {
	return nil, errors.IOFailure("listing", context.DeadlineExceeded)
}
func (failingBox) StateAt(context.Context, int) (*entry.Root, error) {
	return nil, errors.Malformed("bad record")
}
func (failingBox) HistoryOf(context.Context, paths.Path) ([]history.EntryChange, error) {
	return nil, nil
}

func TestErrorMapping(t *testing.T) {
	rec := serve(t, failingBox{}, "/api/revisions")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "IO_FAILURE")

	rec = serve(t, failingBox{}, "/api/revisions/1/tree")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, failingBox{}, "/api/history?path=a")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
