package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

// Server exposes the dispatcher's task results and metrics over HTTP
type Server struct {
	config     *Config
	dispatcher *Dispatcher
	router     *httprouter.Router
	server     *http.Server
}

// NewServer ...
func NewServer(conf *Config, d *Dispatcher) *Server {
	setupMetrics()

	s := &Server{
		config:     conf,
		dispatcher: d,
		router:     httprouter.New(),
	}

	s.router.GET("/tasks", s.TasksHandler())
	s.router.GET("/tasks/:id", s.TaskHandler())
	s.router.Handler(http.MethodGet, "/metrics", metrics.Handler())

	s.server = &http.Server{
		Addr:         conf.Bind,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe blocks until the server is shut down
func (s *Server) ListenAndServe() error {
	log.Infof("listening on %s", s.config.Bind)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown ...
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("error encoding response")
	}
}

// TaskHandler ...
func (s *Server) TaskHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id := p.ByName("id")

		res, ok := s.dispatcher.Lookup(id)
		if !ok {
			log.WithField("task", id).Debug("task not found")
			http.Error(w, "Task Not Found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

// TasksHandler ...
func (s *Server) TasksHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, s.dispatcher.Stats())
	}
}
