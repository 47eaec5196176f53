package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/twaps/server"
	"github.com/kjk/twaps/twapstore"
)

func newTestServer(t *testing.T) *Client {
	path := filepath.Join(t.TempDir(), "twaps.json")
	store, err := twapstore.New(path, nil)
	assert.NoError(t, err)
	ts := httptest.NewServer(server.New(store, nil))
	t.Cleanup(func() {
		ts.Close()
		store.Close()
	})
	return New(ts.URL + "/")
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	c := newTestServer(t)

	assert.NoError(t, c.Ping(ctx))

	_, err := c.Fetch(ctx, "http://x/1")
	assert.True(t, errors.Is(err, ErrStoreUninitialized))
	deleted, err := c.Delete(ctx, "http://x/1")
	assert.False(t, deleted)
	assert.True(t, errors.Is(err, ErrStoreUninitialized))

	src := twapstore.EncodeSource("print(2)\nprint(3)")
	url, err := c.Push(ctx, twapstore.Record{Source: src, URL: "http://x/1", ID: "a"})
	assert.NoError(t, err)
	assert.Equal(t, "http://x/1", url)

	got, err := c.Fetch(ctx, "http://x/1")
	assert.NoError(t, err)
	assert.Equal(t, "print(2)\nprint(3)", got)

	_, err = c.Fetch(ctx, "http://unknown")
	assert.True(t, errors.Is(err, ErrNotFound))

	records, err := c.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []twapstore.Record{{Source: src, URL: "http://x/1", ID: "a"}}, records)

	deleted, err = c.Delete(ctx, "http://x/1")
	assert.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = c.Delete(ctx, "http://x/1")
	assert.NoError(t, err)
	assert.False(t, deleted)
}

func TestClientServerDown(t *testing.T) {
	ts := httptest.NewServer(nil)
	uri := ts.URL
	ts.Close()
	c := New(uri)
	assert.Error(t, c.Ping(context.Background()))
	_, err := c.Push(context.Background(), twapstore.Record{URL: "x"})
	assert.Error(t, err)
}
