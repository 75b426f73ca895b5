// Package devserver is an in-memory stand-in for the trivia backend. It
// serves the same JSON API the client speaks so the terminal client can be
// played and tested without the real service.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/kingrea/trivia-terminal/internal/logbook"
	"github.com/kingrea/trivia-terminal/internal/operation"
	"github.com/kingrea/trivia-terminal/internal/session"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// Server wraps the HTTP listener and the in-memory backend state.
type Server struct {
	settings Settings
	logger   logbook.Logger
	clock    func() time.Time
	store    *store
	router   *mux.Router

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l logbook.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps and eligibility expiry.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithBank replaces the built-in question bank.
func WithBank(bank Bank) Option {
	return func(s *Server) {
		s.store.bank = bank
	}
}

// WithIDs overrides the id generator used for sessions, eligibilities,
// operations and transaction hashes.
func WithIDs(fn func() string) Option {
	return func(s *Server) {
		if fn != nil {
			s.store.newID = fn
		}
	}
}

// NewServer prepares a development server. The bank at settings.BankPath is
// loaded when set.
func NewServer(settings Settings, opts ...Option) (*Server, error) {
	settings.normalize()
	s := &Server{
		settings: settings,
		logger:   logbook.Nop,
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	bank := DefaultBank()
	if settings.BankPath != "" {
		loaded, err := LoadBank(settings.BankPath)
		if err != nil {
			return nil, err
		}
		bank = loaded
	}
	s.store = newStore(bank, settings.QuestionsPerSession, s.now)
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.router = s.routes()
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requestID, s.authenticate)
	api.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleStartSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/answers", s.handleAnswer).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/complete", s.handleComplete).Methods(http.MethodPost)
	api.HandleFunc("/mints", s.handleMint).Methods(http.MethodPost)
	api.HandleFunc("/mints/{id}", s.handleStatus(operation.KindMint)).Methods(http.MethodGet)
	api.HandleFunc("/forges", s.handleForge).Methods(http.MethodPost)
	api.HandleFunc("/forges/{id}", s.handleStatus(operation.KindForge)).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such endpoint")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("devserver: server is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("devserver: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("devserver: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.now()
	server := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("devserver: serve error: %v", err)
		}
	}()
	s.logger.Info("devserver: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.now().Sub(s.startTime).Seconds())
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			w.Header().Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.settings.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.settings.Token {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status        string `json:"status"`
	Categories    int    `json:"categories"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

type categoryView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	QuestionCount int    `json:"questionCount"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		Categories:    len(s.store.bank.Categories),
		UptimeSeconds: s.uptimeSeconds(),
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.store.categories()})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CategoryID string `json:"categoryId"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	sess, err := s.store.start(body.CategoryID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("devserver: session %s started in %s with %d questions", sess.ID, sess.CategoryID, len(sess.Questions))
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req session.AnswerRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.SessionID = mux.Vars(r)["id"]
	res, err := s.store.answer(req)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.complete(mux.Vars(r)["id"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("devserver: session %s complete %d/%d", res.SessionID, res.Score, res.Total)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req operation.MintRequest
	if !s.decode(w, r, &req) {
		return
	}
	op, err := s.store.mint(req)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, op)
}

func (s *Server) handleForge(w http.ResponseWriter, r *http.Request) {
	var req operation.ForgeRequest
	if !s.decode(w, r, &req) {
		return
	}
	op, err := s.store.forge(req)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, op)
}

func (s *Server) handleStatus(kind operation.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op, err := s.store.status(kind, mux.Vars(r)["id"])
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, op)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "empty_body", "empty body")
		return false
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "payload exceeds limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "unreadable_body", "unable to read body")
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, into); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON")
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var se *storeError
	if !errors.As(err, &se) {
		s.logger.Error("devserver: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errConflict):
		status = http.StatusConflict
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, errUnavailable):
		status = http.StatusGone
	}
	writeError(w, status, se.code, se.msg)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
