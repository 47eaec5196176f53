package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/kjk/twaps/log"
	"github.com/kjk/twaps/twapstore"
)

const (
	DefaultMaxBodySize = 1 << 20

	healthText           = "It works!"
	pushedMessage        = "Twap successfully pushed"
	notFoundFormat       = "Twap not found with URL: %s"
	noBodyReason         = "No body string provided"
	bodyTooLargeReasonFm = "request body larger than %d bytes"
)

// UninitializedReason is the error reason sent when nothing was pushed yet
const UninitializedReason = "Twaps file not found. Please push a Twap first."

// Store is implemented by *twapstore.Store
type Store interface {
	Lookup(ctx context.Context, key string) (string, error)
	Upsert(ctx context.Context, rec twapstore.Record) (string, error)
	List(ctx context.Context) ([]twapstore.Record, error)
	Delete(ctx context.Context, key string) (bool, error)
}

type Config struct {
	// max size of request body, DefaultMaxBodySize if 0
	MaxBodySize int64
	// if true, every request is logged to the http log
	LogRequests bool
}

type server struct {
	store  Store
	config Config
}

// PushResponse is returned by POST /api/twaps
type PushResponse struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

// ErrorResponse is returned with non-2xx status codes
type ErrorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// NotFoundText is what POST /twap returns for unknown url
func NotFoundText(url string) string {
	return fmt.Sprintf(notFoundFormat, url)
}

// New returns http handler for all twaps endpoints
func New(store Store, config *Config) http.Handler {
	s := &server{
		store: store,
	}
	if config != nil {
		s.config = *config
	}
	if s.config.MaxBodySize <= 0 {
		s.config.MaxBodySize = DefaultMaxBodySize
	}

	r := mux.NewRouter()
	r.Use(gorillaHandlers.RecoveryHandler(
		gorillaHandlers.PrintRecoveryStack(true),
		gorillaHandlers.RecoveryLogger(recoveryLogger{}),
	))
	if s.config.LogRequests {
		r.Use(logRequests)
	}

	r.HandleFunc("/", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/twap", s.handleLookup).Methods(http.MethodPost)
	r.HandleFunc("/api/twaps", s.handlePush).Methods(http.MethodPost)
	r.HandleFunc("/api/twaps", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/twaps", s.handleDelete).Methods(http.MethodDelete)
	return r
}

type recoveryLogger struct{}

func (recoveryLogger) Println(args ...any) {
	log.Errorf("PANIC in handler: %s", fmt.Sprint(args...))
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Verbosef("%s %s %d %s\n", r.Method, r.URL.Path, m.Code, m.Duration.Round(time.Microsecond))
		err := log.HTTPRequest(r, m.Code, m.Written, m.Duration)
		log.IfErrf(err, "log.HTTPRequest() failed with '%s'", err)
	})
}

func serveText(w http.ResponseWriter, code int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	io.WriteString(w, s)
}

func serveJSON(w http.ResponseWriter, code int, v any) {
	d, err := json.Marshal(v)
	if err != nil {
		log.Errorf("json.Marshal() failed with '%s'", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write(d)
}

func serveError(w http.ResponseWriter, code int, reason string) {
	serveJSON(w, code, &ErrorResponse{Error: true, Reason: reason})
}

// serveStoreError maps errors from the store to http errors
func serveStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, twapstore.ErrStoreUninitialized) {
		serveError(w, http.StatusNotFound, UninitializedReason)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		serveError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	log.Errorf("%s %s failed with '%s'", r.Method, r.URL.Path, err)
	serveError(w, http.StatusInternalServerError, err.Error())
}

// readBody returns false if it already sent an error response
func (s *server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Body == nil {
		serveError(w, http.StatusBadRequest, noBodyReason)
		return nil, false
	}
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)
	d, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			serveError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf(bodyTooLargeReasonFm, maxErr.Limit))
			return nil, false
		}
		serveError(w, http.StatusBadRequest, noBodyReason)
		return nil, false
	}
	return d, true
}

// GET /
func handleHealth(w http.ResponseWriter, r *http.Request) {
	serveText(w, http.StatusOK, healthText)
}

// POST /twap
// body is url of the twap, returns its source with line breaks decoded
func (s *server) handleLookup(w http.ResponseWriter, r *http.Request) {
	d, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if len(d) == 0 {
		serveError(w, http.StatusBadRequest, noBodyReason)
		return
	}
	key := string(d)
	src, err := s.store.Lookup(r.Context(), key)
	if errors.Is(err, twapstore.ErrNotFound) {
		// clients expect plain text, even for a miss
		serveText(w, http.StatusOK, NotFoundText(key))
		return
	}
	if err != nil {
		serveStoreError(w, r, err)
		return
	}
	serveText(w, http.StatusOK, src)
}

type pushRequest struct {
	Source *string `json:"source"`
	URL    *string `json:"url"`
	ID     *string `json:"id"`
}

func (p *pushRequest) toRecord() (twapstore.Record, error) {
	var rec twapstore.Record
	if p.Source == nil {
		return rec, errors.New("missing field 'source'")
	}
	if p.URL == nil {
		return rec, errors.New("missing field 'url'")
	}
	if p.ID == nil {
		return rec, errors.New("missing field 'id'")
	}
	rec.Source = *p.Source
	rec.URL = *p.URL
	rec.ID = *p.ID
	return rec, nil
}

// POST /api/twaps
// body is JSON {source, url, id}
func (s *server) handlePush(w http.ResponseWriter, r *http.Request) {
	d, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var req pushRequest
	if err := json.Unmarshal(d, &req); err != nil {
		serveError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	rec, err := req.toRecord()
	if err != nil {
		serveError(w, http.StatusBadRequest, err.Error())
		return
	}
	url, err := s.store.Upsert(r.Context(), rec)
	if err != nil {
		serveStoreError(w, r, err)
		return
	}
	log.EventFromRequest(r, "twap-push", "url", url, "id", rec.ID, "size", len(rec.Source))
	serveJSON(w, http.StatusCreated, &PushResponse{Message: pushedMessage, URL: url})
}

// GET /api/twaps
func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if errors.Is(err, twapstore.ErrStoreUninitialized) {
		records = []twapstore.Record{}
		err = nil
	}
	if err != nil {
		serveStoreError(w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, records)
}

// DELETE /api/twaps
// body is url of the twap
func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	d, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if len(d) == 0 {
		serveError(w, http.StatusBadRequest, noBodyReason)
		return
	}
	key := string(d)
	deleted, err := s.store.Delete(r.Context(), key)
	if err != nil {
		serveStoreError(w, r, err)
		return
	}
	if !deleted {
		serveError(w, http.StatusNotFound, NotFoundText(key))
		return
	}
	log.EventFromRequest(r, "twap-delete", "url", key)
	w.WriteHeader(http.StatusNoContent)
}
