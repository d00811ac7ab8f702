// Package server exposes one automator over HTTP so a device can be driven
// remotely: JSON endpoints for the automator operations and a websocket that
// streams screenshots and accepts taps and key presses.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/devicelab-dev/adbauto/pkg/automator"
	"github.com/devicelab-dev/adbauto/pkg/logger"
)

// DefaultFrameInterval is the screen stream rate when none is configured.
const DefaultFrameInterval = time.Second

// Server serializes every device operation behind one mutex: dumps and
// screenshots share fixed resource paths.
type Server struct {
	Automator     *automator.Automator
	FrameInterval time.Duration

	router   *mux.Router
	upgrader websocket.Upgrader
	mu       sync.Mutex
}

// New builds a server for a.
func New(a *automator.Automator) *Server {
	s := &Server{
		Automator:     a,
		FrameInterval: DefaultFrameInterval,
		upgrader:      websocket.Upgrader{EnableCompression: false},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestID)

	r.HandleFunc("/health", s.health).Methods("GET")
	r.HandleFunc("/info", s.info).Methods("GET")
	r.HandleFunc("/screenshot", s.screenshot).Methods("GET")
	r.HandleFunc("/hierarchy", s.hierarchy).Methods("GET")
	r.HandleFunc("/screen/ws", s.stream).Methods("GET")

	r.HandleFunc("/shell", s.shell).Methods("POST")
	r.HandleFunc("/tap", s.tap).Methods("POST")
	r.HandleFunc("/tap/text", s.tapText).Methods("POST")
	r.HandleFunc("/tap/xpath", s.tapXPath).Methods("POST")
	r.HandleFunc("/text", s.text).Methods("POST")
	r.HandleFunc("/keys/{key}", s.key).Methods("POST")
	r.HandleFunc("/wait-for", s.waitFor).Methods("POST")
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("serving %s on %s", s.Automator.Serial(), addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// do runs fn with exclusive access to the device.
func (s *Server) do(fn func(a *automator.Automator) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.Automator)
}

type ctxKey struct{}

// requestID tags each request with an id, echoed in X-Request-ID and logged.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		logger.WithFields(logrus.Fields{
			"request":  id,
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("handled")
	})
}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
