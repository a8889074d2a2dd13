/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api provides the HTTP API server for the discovery engine.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vlanvision/vlanvision/pkg/alerting"
	"github.com/vlanvision/vlanvision/pkg/backup"
	"github.com/vlanvision/vlanvision/pkg/discovery"
	"github.com/vlanvision/vlanvision/pkg/events"
	vvhttp "github.com/vlanvision/vlanvision/pkg/http"
	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/registry"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// APIServer exposes the engine over HTTP.
type APIServer struct {
	router    *mux.Router
	engine    *discovery.Engine
	registry  *registry.Registry
	evaluator *alerting.Evaluator
	hub       *events.Hub
	backups   *backup.Service
	logger    logger.Logger
	apiKey    string
	startedAt time.Time

	srv *http.Server
}

// NewAPIServer wires the server with functional options and registers all
// routes.
func NewAPIServer(options ...func(*APIServer)) *APIServer {
	s := &APIServer{
		router:    mux.NewRouter(),
		startedAt: time.Now(),
	}

	for _, o := range options {
		o(s)
	}

	if s.logger == nil {
		s.logger = logger.NewTestLogger()
	}

	s.setupRoutes()

	return s
}

// WithEngine attaches the discovery engine.
func WithEngine(e *discovery.Engine) func(*APIServer) {
	return func(s *APIServer) {
		s.engine = e
	}
}

// WithRegistry attaches the device registry.
func WithRegistry(r *registry.Registry) func(*APIServer) {
	return func(s *APIServer) {
		s.registry = r
	}
}

// WithEvaluator attaches the alert evaluator.
func WithEvaluator(e *alerting.Evaluator) func(*APIServer) {
	return func(s *APIServer) {
		s.evaluator = e
	}
}

// WithEventHub attaches the event hub serving the websocket stream.
func WithEventHub(h *events.Hub) func(*APIServer) {
	return func(s *APIServer) {
		s.hub = h
	}
}

// WithBackupService attaches the configuration backup service.
func WithBackupService(b *backup.Service) func(*APIServer) {
	return func(s *APIServer) {
		s.backups = b
	}
}

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) func(*APIServer) {
	return func(s *APIServer) {
		s.logger = log
	}
}

// WithAPIKey enables API key enforcement on the network routes.
func WithAPIKey(key string) func(*APIServer) {
	return func(s *APIServer) {
		s.apiKey = key
	}
}

func (s *APIServer) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return vvhttp.CommonMiddleware(next, s.logger)
	})

	s.router.HandleFunc("/api/status", s.getStatus).Methods(http.MethodGet)

	network := s.router.PathPrefix("/api/network").Subrouter()
	network.Use(vvhttp.APIKeyMiddleware(s.apiKey, s.logger))

	network.HandleFunc("/devices", s.getDevices).Methods(http.MethodGet)
	network.HandleFunc("/devices/{id}", s.getDevice).Methods(http.MethodGet)
	network.HandleFunc("/devices/{id}/vlan", s.putDeviceVLAN).Methods(http.MethodPut)
	network.HandleFunc("/devices/{id}/retire", s.postRetireDevice).Methods(http.MethodPost)
	network.HandleFunc("/devices/{id}/backup", s.postDeviceBackup).Methods(http.MethodPost)
	network.HandleFunc("/devices/{id}/backups", s.getDeviceBackups).Methods(http.MethodGet)

	network.HandleFunc("/discover", s.postDiscover).Methods(http.MethodPost)
	network.HandleFunc("/jobs", s.getJobs).Methods(http.MethodGet)
	network.HandleFunc("/jobs/{id}", s.getJob).Methods(http.MethodGet)
	network.HandleFunc("/jobs/{id}", s.deleteJob).Methods(http.MethodDelete)

	network.HandleFunc("/topology", s.getTopology).Methods(http.MethodGet)
	network.HandleFunc("/vlans", s.getVLANs).Methods(http.MethodGet)

	network.HandleFunc("/alerts", s.getAlerts).Methods(http.MethodGet)
	network.HandleFunc("/alerts/{id}/acknowledge", s.postAcknowledgeAlert).Methods(http.MethodPost)

	network.HandleFunc("/events", s.streamEvents).Methods(http.MethodGet)
}

// Router exposes the handler for tests and embedding.
func (s *APIServer) Router() http.Handler {
	return s.router
}

// Start serves HTTP until the listener fails or Stop is called.
func (s *APIServer) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	s.logger.Info().Str("addr", addr).Msg("API server listening")

	return s.srv.ListenAndServe()
}

// Stop shuts the listener down gracefully.
func (s *APIServer) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}

	return s.srv.Shutdown(ctx)
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (s *APIServer) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Message: message, Status: statusCode}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode error response")
	}
}

func (s *APIServer) encodeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
