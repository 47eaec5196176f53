package httputil

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/alecthomas/assert"
)

func TestJoinURL(t *testing.T) {
	tests := []string{
		"foo", "bar", "foo/bar",
		"foo", "/bar", "foo/bar",
		"foo/", "bar", "foo/bar",
		"foo/", "/bar", "foo/bar",
	}
	n := len(tests)
	for i := 0; i < n; i += 3 {
		got := JoinURL(tests[i], tests[i+1])
		exp := tests[i+2]
		assert.Equal(t, exp, got)
	}
}

func TestNormalizeServerURL(t *testing.T) {
	tests := []string{
		"localhost:8080", "http://localhost:8080",
		"http://localhost:8080/", "http://localhost:8080",
		" https://twaps.dev ", "https://twaps.dev",
	}
	for i := 0; i < len(tests); i += 2 {
		assert.Equal(t, tests[i+1], NormalizeServerURL(tests[i]))
	}
}

func TestRunServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	chAddr := make(chan string, 1)
	chDone := make(chan error, 1)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "It works!")
	})
	go func() {
		chDone <- RunServer(ctx, ServerOptions{
			Addr:      "127.0.0.1:0",
			Handler:   handler,
			DidListen: func(addr string) { chAddr <- addr },
		})
	}()

	var addr string
	select {
	case addr = <-chAddr:
	case err := <-chDone:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server didn't start")
	}

	resp, err := NewTimeoutClient(time.Second, 5*time.Second).Get("http://" + addr + "/")
	assert.NoError(t, err)
	d, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.NoError(t, err)
	assert.Equal(t, "It works!", string(d))

	cancel()
	select {
	case err := <-chDone:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatalf("server didn't shut down")
	}
}

func TestRunServerBadOptions(t *testing.T) {
	assert.Error(t, RunServer(context.Background(), ServerOptions{}))
	assert.Error(t, RunServer(context.Background(), ServerOptions{Addr: ":0"}))
}
