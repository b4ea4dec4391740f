package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/docstore"
)

// Server exposes the databases of an Opener over HTTP.
type Server struct {
	open     docstore.Opener
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	dbs    map[string]docstore.Database
	closed bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server that opens databases lazily by name.
func NewServer(open docstore.Opener, opts ...ServerOption) *Server {
	s := &Server{
		open:   open,
		logger: slog.Default(),
		dbs:    make(map[string]docstore.Database),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /{db}", s.withDB(s.handleInfo))
	mux.HandleFunc("GET /{db}/_changes", s.withDB(s.handleChanges))
	mux.HandleFunc("GET /{db}/_changes/ws", s.withDB(s.handleChangesWS))
	mux.HandleFunc("GET /{db}/_all_docs", s.withDB(s.handleAllDocs))
	mux.HandleFunc("POST /{db}/_bulk_docs", s.withDB(s.handleBulkDocs))
	mux.HandleFunc("POST /{db}/_revs_diff", s.withDB(s.handleRevsDiff))
	mux.HandleFunc("GET /{db}/_local/{id}", s.withDB(s.handleGetLocal))
	mux.HandleFunc("PUT /{db}/_local/{id}", s.withDB(s.handlePutLocal))
	mux.HandleFunc("GET /{db}/{id}", s.withDB(s.handleGet))
	mux.HandleFunc("PUT /{db}/{id}", s.withDB(s.handlePut))
	mux.HandleFunc("DELETE /{db}/{id}", s.withDB(s.handleDelete))
	return mux
}

// Close closes every database the server opened.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	var errs []error
	for name, db := range s.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	s.dbs = make(map[string]docstore.Database)
	return errors.Join(errs...)
}

func (s *Server) database(name string) (docstore.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, docstore.ErrClosed
	}
	if db, ok := s.dbs[name]; ok {
		return db, nil
	}
	db, err := s.open(name)
	if err != nil {
		return nil, err
	}
	s.dbs[name] = db
	s.logger.Info("database opened", "db", name)
	return db, nil
}

type dbHandler func(w http.ResponseWriter, r *http.Request, db docstore.Database)

func (s *Server) withDB(h dbHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("db")
		if !validName(name) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "illegal_database_name", Reason: name})
			return
		}
		db, err := s.database(name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		h(w, r, db)
	}
}

func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, "_") {
		return false
	}
	for _, r := range name {
		ok := r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-' || r == '.'
		if !ok {
			return false
		}
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case docstore.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Reason: err.Error()})
	case docstore.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict", Reason: err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Reason: err.Error()})
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request, db docstore.Database) {
	info, err := db.Info(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request, db docstore.Database) {
	q := r.URL.Query()
	opts := docstore.ChangesOptions{IncludeDocs: q.Get("include_docs") == "true"}

	var err error
	if v := q.Get("since"); v != "" {
		if opts.Since, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Reason: "invalid since"})
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Reason: "invalid limit"})
			return
		}
	}

	res, err := db.Changes(r.Context(), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleChangesWS streams live changes until either side goes away.
func (s *Server) handleChangesWS(w http.ResponseWriter, r *http.Request, db docstore.Database) {
	since := docstore.SinceNow
	if v := r.URL.Query().Get("since"); v != "" && v != "now" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Reason: "invalid since"})
			return
		}
		since = n
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reading detects the client closing the connection.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	feed, err := db.Watch(ctx, since)
	if err != nil {
		s.logger.Warn("watch failed", "error", err)
		return
	}
	defer feed.Close()

	for c := range feed.Changes() {
		if err := conn.WriteJSON(c); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

func (s *Server) handleAllDocs(w http.ResponseWriter, r *http.Request, db docstore.Database) {
	docs, err := db.AllDocuments(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allDocsResponse{Docs: docs})
}

func (s *Server) handleBulkDocs(w http.ResponseWriter, r *http.Request, db docstore.Database) {
	var req bulkDocsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Reason: err.Error()})
		return
	}
	if req.NewEdits {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Reason: "only new_edits=false is supported"})
		return
	}

	applied, err := db.BulkWrite(r.Context(), req.Docs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bulkDocsResponse{Applied: applied})
}

func (s *Server) handleRevsDiff(w http.ResponseWriter, r *http.Request, db docstore.Database) {
	var revs map[string]string
	if err := json.NewDecoder(r.Body).Decode(&revs); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Reason: err.Error()})
		return
	}

	missing, err := db.RevsDiff(r.Context(), revs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, revsDiffResponse{Missing: missing})
}

func (s *Server) handleGetLocal(w http.ResponseWriter, r *http.Request, db docstore.Database) {
	var body json.RawMessage
	if err := db.GetLocal(r.Context(), localID(r), &body); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handlePutLocal(w http.ResponseWriter, r *http.Request, db docstore.Database) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Reason: err.Error()})
		return
	}
	if err := db.PutLocal(r.Context(), localID(r), body); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func localID(r *http.Request) string {
	return "_local/" + r.PathValue("id")
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, db docstore.Database) {
	d, err := db.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, db docstore.Database) {
	var d doc.Document
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Reason: err.Error()})
		return
	}
	d.ID = r.PathValue("id")

	out, err := db.Put(r.Context(), d)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, db docstore.Database) {
	d := doc.Document{ID: r.PathValue("id"), Rev: r.URL.Query().Get("rev")}

	out, err := db.Remove(r.Context(), d)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
