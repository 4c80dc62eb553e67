// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"lvcs/internal/diff"
	"lvcs/internal/entry"
	"lvcs/internal/errors"
	"lvcs/internal/history"
	"lvcs/internal/logging"
	"lvcs/internal/paths"

	"go.uber.org/zap"
)

// Box is the read side of a history.
type Box interface {
	Revision() int
	List() ([]history.Revision, error)
	StateAt(ctx context.Context, rev int) (*entry.Root, error)
	HistoryOf(ctx context.Context, p paths.Path) ([]history.EntryChange, error)
}

// Node is the JSON form of an entry.
type Node struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	Children []Node `json:"children,omitempty"`
}

// ChangeView is the JSON form of one change in an entry's history.
type ChangeView struct {
	Revision    int    `json:"revision"`
	Label       string `json:"label,omitempty"`
	Kind        string `json:"kind"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

type HistoryHandler struct {
	box    Box
	diff   *diff.Engine
	logger *logging.Logger
}

func NewHistoryHandler(box Box, logger *logging.Logger) *HistoryHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &HistoryHandler{box: box, diff: diff.NewEngine(3), logger: logger}
}

// Register mounts the handlers on mux.
func (h *HistoryHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/revisions", h.Revisions)
	mux.HandleFunc("GET /api/revisions/{rev}/tree", h.Tree)
	mux.HandleFunc("GET /api/history", h.History)
	mux.HandleFunc("GET /api/diff", h.Diff)
}

func (h *HistoryHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":   "healthy",
		"revision": h.box.Revision(),
	})
}

func (h *HistoryHandler) Revisions(w http.ResponseWriter, r *http.Request) {
	revs, err := h.box.List()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if revs == nil {
		revs = []history.Revision{}
	}
	h.writeJSON(w, r, http.StatusOK, revs)
}

// Tree serves the tree at a revision, or the subtree at ?path=.
func (h *HistoryHandler) Tree(w http.ResponseWriter, r *http.Request) {
	rev, err := strconv.Atoi(r.PathValue("rev"))
	if err != nil {
		http.Error(w, "revision must be a number", http.StatusBadRequest)
		return
	}

	root, err := h.box.StateAt(r.Context(), rev)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	e, err := root.Entry(paths.Parse(r.URL.Query().Get("path")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, toNode(e))
}

func (h *HistoryHandler) History(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}

	changes, err := h.box.HistoryOf(r.Context(), paths.Parse(p))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]ChangeView, 0, len(changes))
	for _, c := range changes {
		views = append(views, ChangeView{
			Revision:    c.Revision,
			Label:       c.Label,
			Kind:        c.Change.Kind().String(),
			Path:        c.Path,
			Description: c.Change.String(),
		})
	}
	h.writeJSON(w, r, http.StatusOK, views)
}

// Diff serves the line diff of a file between ?from= and ?to= revisions.
// A file missing at one side diffs against empty content.
func (h *HistoryHandler) Diff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := paths.Parse(q.Get("path"))
	from, errFrom := strconv.Atoi(q.Get("from"))
	to, errTo := strconv.Atoi(q.Get("to"))
	if p.IsRoot() || errFrom != nil || errTo != nil {
		http.Error(w, "path, from and to are required", http.StatusBadRequest)
		return
	}

	oldContent, err := h.contentAt(r.Context(), from, p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	newContent, err := h.contentAt(r.Context(), to, p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result := h.diff.DiffStrings(oldContent, newContent)
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"path":   p.String(),
		"from":   from,
		"to":     to,
		"binary": result.Binary,
		"stats":  result.Stats,
		"diff":   result.Format(),
	})
}

func (h *HistoryHandler) contentAt(ctx context.Context, rev int, p paths.Path) (string, error) {
	root, err := h.box.StateAt(ctx, rev)
	if err != nil {
		return "", err
	}
	e, err := root.Entry(p)
	if err != nil {
		return "", nil
	}
	return entry.Content(e)
}

func toNode(e entry.Entry) Node {
	n := Node{ID: e.ID(), Name: e.Name(), Path: e.Path().String(), Type: "file"}
	if f, ok := e.(*entry.File); ok {
		n.Content = f.Content()
		return n
	}
	n.Type = "directory"
	children, _ := entry.Children(e)
	for _, c := range children {
		n.Children = append(n.Children, toNode(c))
	}
	return n
}

func (h *HistoryHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithRequest(r.Context()).Warn("writing response", zap.Error(err))
	}
}

func (h *HistoryHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithRequest(r.Context()).Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, r, status, map[string]string{
		"type":    string(errors.TypeOf(err)),
		"message": err.Error(),
	})
}

func statusFor(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeMalformed:
		return http.StatusBadRequest
	case errors.ErrorTypeStructural, errors.ErrorTypeUnsupported:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
