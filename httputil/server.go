package httputil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

type ServerOptions struct {
	// e.g. ":8080" or "127.0.0.1:8080"
	Addr    string
	Handler http.Handler
	// how long to wait for outstanding requests on shutdown, 5s if 0
	ShutdownTimeout time.Duration
	// called once we're listening, with the actual address
	DidListen func(addr string)
}

func NewServer(handler http.Handler) *http.Server {
	return &http.Server{
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		Handler:      handler,
	}
}

// RunServer serves HTTP until ctx is cancelled or the server fails.
// On cancellation it shuts down gracefully and returns nil.
func RunServer(ctx context.Context, opts ServerOptions) error {
	if opts.Addr == "" {
		return errors.New("need to provide opts.Addr")
	}
	if opts.Handler == nil {
		return errors.New("need to provide opts.Handler")
	}
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return err
	}
	if opts.DidListen != nil {
		opts.DidListen(ln.Addr().String())
	}

	httpSrv := NewServer(opts.Handler)
	errch := make(chan error, 1)
	go func() {
		errch <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errch:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		timeout := opts.ShutdownTimeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		// Shutdown() needs a non-nil context that isn't already cancelled
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			return httpSrv.Close()
		}
		return nil
	}
}
