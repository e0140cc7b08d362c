// Package admin serves health, metrics and session maintenance endpoints on
// a listener separate from the robot API.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"botvac-bridge/internal/utils"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Connectivity reports the broker link state.
type Connectivity interface {
	IsConnected() bool
}

// Sessions is the slice of the session pool the admin surface touches.
type Sessions interface {
	Len() int
	Invalidate(serial string)
	Flush()
}

type Server struct {
	http     *http.Server
	mqtt     Connectivity
	sessions Sessions
	gatherer prometheus.Gatherer
	started  time.Time
}

// NewServer returns the admin server listening on addr.
func NewServer(addr string, mqtt Connectivity, sessions Sessions, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		mqtt:     mqtt,
		sessions: sessions,
		gatherer: gatherer,
		started:  time.Now(),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the mux routes.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Use(loggingMiddleware)

	router.HandleFunc("/health", s.health).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/sessions", s.flushSessions).Methods("DELETE")
	router.HandleFunc("/sessions/{serial}", s.invalidateSession).Methods("DELETE")

	return router
}

func (s *Server) Start() error {
	utils.Logger.Infof("🩺 Admin listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	connected := s.mqtt != nil && s.mqtt.IsConnected()
	status := "running"
	code := http.StatusOK
	if !connected {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{
		"status":         status,
		"mqtt_connected": connected,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	if s.sessions != nil {
		body["cached_sessions"] = s.sessions.Len()
	}
	writeJSON(w, code, body)
}

func (s *Server) flushSessions(w http.ResponseWriter, r *http.Request) {
	s.sessions.Flush()
	utils.Logger.Info("🧹 All robot sessions dropped")
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (s *Server) invalidateSession(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]
	s.sessions.Invalidate(serial)
	utils.ForRobot(serial).Info("🧹 Robot session dropped")
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "serial": serial})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Logger.Errorf("Failed to encode admin response: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		utils.Logger.Debugf("%s %s %s %v", r.Method, r.RequestURI, r.RemoteAddr, time.Since(start))
	})
}
