package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/twaps/twapstore"
)

type appTester struct {
	app   http.Handler
	store *twapstore.Store
	t     *testing.T
}

func newAppTester(t *testing.T, config *Config) *appTester {
	path := filepath.Join(t.TempDir(), ".twaps", "twaps.json")
	store, err := twapstore.New(path, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &appTester{app: New(store, config), store: store, t: t}
}

func (app *appTester) doReq(method, uri, body string) *httptest.ResponseRecorder {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, uri, bodyReader)
	rr := httptest.NewRecorder()
	app.app.ServeHTTP(rr, req)
	return rr
}

func (app *appTester) push(source, url, id string) *httptest.ResponseRecorder {
	d, err := json.Marshal(map[string]string{"source": source, "url": url, "id": id})
	assert.NoError(app.t, err)
	return app.doReq("POST", "/api/twaps", string(d))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	var res ErrorResponse
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Error)
	return res
}

func TestHealth(t *testing.T) {
	app := newAppTester(t, nil)
	rr := app.doReq("GET", "/", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "It works!", rr.Body.String())
}

func TestLookupBeforePush(t *testing.T) {
	app := newAppTester(t, nil)
	rr := app.doReq("POST", "/twap", "http://x/1")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	res := decodeError(t, rr)
	assert.Equal(t, "Twaps file not found. Please push a Twap first.", res.Reason)
}

func TestPushAndLookup(t *testing.T) {
	app := newAppTester(t, nil)

	rr := app.push("print(1)", "http://x/1", "a")
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json"))
	var pushed PushResponse
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pushed))
	assert.Equal(t, PushResponse{Message: "Twap successfully pushed", URL: "http://x/1"}, pushed)

	rr = app.doReq("POST", "/twap", "http://x/1")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "print(1)", rr.Body.String())

	rr = app.push(`print(2)\nprint(3)`, "http://x/1", "a")
	assert.Equal(t, http.StatusCreated, rr.Code)
	rr = app.doReq("POST", "/twap", "http://x/1")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "print(2)\nprint(3)", rr.Body.String())

	rr = app.doReq("POST", "/twap", "http://unknown")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Twap not found with URL: http://unknown", rr.Body.String())

	records, err := app.store.List(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []twapstore.Record{{Source: `print(2)\nprint(3)`, URL: "http://x/1", ID: "a"}}, records)
}

func TestBadRequests(t *testing.T) {
	app := newAppTester(t, nil)

	rr := app.doReq("POST", "/twap", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "No body string provided", decodeError(t, rr).Reason)

	rr = app.doReq("POST", "/api/twaps", "not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = app.doReq("POST", "/api/twaps", `{"source": "print(1)", "url": "http://x/1"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "missing field 'id'", decodeError(t, rr).Reason)

	// empty strings are fine
	rr = app.doReq("POST", "/api/twaps", `{"source": "", "url": "", "id": ""}`)
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = app.doReq("GET", "/twap", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestBodyTooLarge(t *testing.T) {
	app := newAppTester(t, &Config{MaxBodySize: 16})
	rr := app.push(strings.Repeat("x", 100), "http://x/1", "a")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	_, err := app.store.List(context.Background())
	assert.True(t, errors.Is(err, twapstore.ErrStoreUninitialized))
}

func TestListAndDelete(t *testing.T) {
	app := newAppTester(t, nil)

	rr := app.doReq("GET", "/api/twaps", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", rr.Body.String())

	rr = app.doReq("DELETE", "/api/twaps", "http://x/1")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, UninitializedReason, decodeError(t, rr).Reason)

	app.push("a", "http://x/a", "1")
	app.push("b", "http://x/b", "2")

	rr = app.doReq("GET", "/api/twaps", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	var records []twapstore.Record
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	assert.Equal(t, 2, len(records))
	assert.Equal(t, "http://x/a", records[0].URL)

	rr = app.doReq("DELETE", "/api/twaps", "http://x/a")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = app.doReq("DELETE", "/api/twaps", "http://x/a")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, NotFoundText("http://x/a"), decodeError(t, rr).Reason)

	rr = app.doReq("POST", "/twap", "http://x/a")
	assert.Equal(t, "Twap not found with URL: http://x/a", rr.Body.String())
}

func TestCorruptStore(t *testing.T) {
	app := newAppTester(t, nil)
	path := app.store.Path()
	assert.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	assert.NoError(t, os.WriteFile(path, []byte("{corrupt"), 0644))

	rr := app.doReq("POST", "/twap", "http://x/1")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	// push recovers by starting over
	rr = app.push("print(1)", "http://x/1", "a")
	assert.Equal(t, http.StatusCreated, rr.Code)
	rr = app.doReq("POST", "/twap", "http://x/1")
	assert.Equal(t, "print(1)", rr.Body.String())
}

func TestPushPersistenceError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	assert.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	store, err := twapstore.New(filepath.Join(blocker, "twaps.json"), nil)
	assert.NoError(t, err)
	defer store.Close()
	app := &appTester{app: New(store, nil), store: store, t: t}

	rr := app.push("print(1)", "http://x/1", "a")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	res := decodeError(t, rr)
	assert.True(t, res.Reason != "")
	_, err = os.Stat(store.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

type panicStore struct {
	Store
}

func (panicStore) Lookup(ctx context.Context, key string) (string, error) {
	panic("boom")
}

func TestRecoversFromPanic(t *testing.T) {
	h := New(panicStore{}, &Config{LogRequests: true})
	req := httptest.NewRequest("POST", "/twap", strings.NewReader("http://x/1"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
