// Package server exposes the request handler over HTTP for local and
// container deployments. In a serverless deployment the gateway delivers
// events to the handler directly and this package is unused.
package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/misaki-ai/misaki/pkg/handler"
)

// Server feeds inbound HTTP requests to the handler and writes the response
// envelope back verbatim.
type Server struct {
	listen  string
	handler *handler.Handler
	mux     *http.ServeMux
}

// New creates a Server listening on addr.
func New(addr string, h *handler.Handler) *Server {
	s := &Server{
		listen:  addr,
		handler: h,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("/invoke", s.handleInvoke)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("misaki listening on %s", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	r.Body.Close()

	resp := s.handler.HandleRaw(r.Context(), body)

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write([]byte(resp.Body))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
