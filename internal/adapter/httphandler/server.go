package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	timeoutBody    = `{"error":"Request timed out"}`
)

// HTTPServer serves the storefront API. Every request is bounded by the
// configured timeout and answered with a JSON error when it runs out.
type HTTPServer struct {
	srv *http.Server
}

func NewHTTPServer(addr string, handler http.Handler, timeout time.Duration) HTTPServer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return HTTPServer{&http.Server{
		Addr:              addr,
		Handler:           http.TimeoutHandler(handler, timeout, timeoutBody),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * timeout,
	}}
}

// Run listens and serves until Close. stopFn is called when serving ends
// for any other reason, including a failed bind.
func (s HTTPServer) Run(stopFn context.CancelFunc) {
	const op = "HTTPServer.Run"
	log := slog.With("op", op, "addr", s.srv.Addr)
	defer stopFn()

	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		log.Error("failed to listen", "err", err)
		return
	}
	log.Info("storefront api is listening", "addr", ln.Addr().String())

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("unexpected server shutdown", "err", err)
	}
}

// Close waits for in-flight requests until ctx is done.
func (s HTTPServer) Close(ctx context.Context) {
	const op = "HTTPServer.Close"
	log := slog.With("op", op)

	if err := s.srv.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown gracefully", "err", err)
		_ = s.srv.Close()
		return
	}
	log.Info("http server is closed")
}
