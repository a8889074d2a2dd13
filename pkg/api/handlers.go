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

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vlanvision/vlanvision/pkg/alerting"
	"github.com/vlanvision/vlanvision/pkg/backup"
	"github.com/vlanvision/vlanvision/pkg/discovery"
	"github.com/vlanvision/vlanvision/pkg/models"
	"github.com/vlanvision/vlanvision/pkg/registry"
	"github.com/vlanvision/vlanvision/pkg/topology"
)

// getDevices returns the registry snapshot: last-known-good device state
// plus reachability. It reads a consistent snapshot and never blocks on a
// running discovery job.
//
// @Summary List devices
// @Produce json
// @Success 200 {object} map[string][]models.Device
// @Router /api/network/devices [get]
func (s *APIServer) getDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.Snapshot()
	if devices == nil {
		devices = []models.Device{}
	}

	s.encodeJSONResponse(w, http.StatusOK, map[string]interface{}{"devices": devices})
}

// @Summary Get one device
// @Produce json
// @Success 200 {object} models.Device
// @Failure 404 {object} ErrorResponse
// @Router /api/network/devices/{id} [get]
func (s *APIServer) getDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.registry.GetDevice(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, "device not found", http.StatusNotFound)
		return
	}

	s.encodeJSONResponse(w, http.StatusOK, dev)
}

type vlanAssignment struct {
	VLANID *int `json:"vlan_id"`
}

// putDeviceVLAN assigns or clears a device's VLAN. A null or negative
// vlan_id clears the assignment.
func (s *APIServer) putDeviceVLAN(w http.ResponseWriter, r *http.Request) {
	var body vlanAssignment
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	vlanID := -1
	if body.VLANID != nil {
		vlanID = *body.VLANID
	}

	id := mux.Vars(r)["id"]

	if err := s.registry.AssignVLAN(id, vlanID); err != nil {
		s.writeRegistryError(w, err)
		return
	}

	dev, _ := s.registry.GetDevice(id)
	s.encodeJSONResponse(w, http.StatusOK, dev)
}

func (s *APIServer) postRetireDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.RetireDevice(mux.Vars(r)["id"]); err != nil {
		s.writeRegistryError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrDeviceNotFound):
		s.writeError(w, "device not found", http.StatusNotFound)
	case errors.Is(err, registry.ErrDeviceRetired):
		s.writeError(w, "device is retired", http.StatusConflict)
	default:
		s.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// discoverResponse is the accepted-scan body.
type discoverResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// postDiscover queues a discovery scan. Overlapping requests coalesce into
// the running job.
//
// @Summary Trigger discovery
// @Accept json
// @Produce json
// @Success 202 {object} discoverResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/network/discover [post]
func (s *APIServer) postDiscover(w http.ResponseWriter, r *http.Request) {
	var req models.DiscoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req.Source = "api"

	jobID, coalesced, err := s.engine.Submit(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, discovery.ErrInvalidCIDR), errors.Is(err, discovery.ErrRangeTooLarge):
			s.writeError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, discovery.ErrJobQueueFull):
			s.writeError(w, err.Error(), http.StatusServiceUnavailable)
		case errors.Is(err, discovery.ErrEngineStopped):
			s.writeError(w, err.Error(), http.StatusServiceUnavailable)
		default:
			s.writeError(w, err.Error(), http.StatusInternalServerError)
		}

		return
	}

	status := "queued"
	if coalesced {
		status = "coalesced"
	}

	s.encodeJSONResponse(w, http.StatusAccepted, discoverResponse{JobID: jobID, Status: status})
}

func (s *APIServer) getJobs(w http.ResponseWriter, _ *http.Request) {
	s.encodeJSONResponse(w, http.StatusOK, map[string]interface{}{"jobs": s.engine.Jobs()})
}

func (s *APIServer) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.engine.Job(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, "job not found", http.StatusNotFound)
		return
	}

	s.encodeJSONResponse(w, http.StatusOK, job)
}

// deleteJob cancels a pending or running job.
func (s *APIServer) deleteJob(w http.ResponseWriter, r *http.Request) {
	err := s.engine.Cancel(mux.Vars(r)["id"])

	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, discovery.ErrJobNotFound):
		s.writeError(w, "job not found", http.StatusNotFound)
	case errors.Is(err, discovery.ErrJobFinished):
		s.writeError(w, "job already finished", http.StatusConflict)
	default:
		s.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// getTopology returns the latest derived graph, as JSON by default or as
// Graphviz DOT with ?format=dot.
func (s *APIServer) getTopology(w http.ResponseWriter, r *http.Request) {
	graph := s.engine.Graph()

	if r.URL.Query().Get("format") == "dot" {
		w.Header().Set("Content-Type", "text/vnd.graphviz")

		if _, err := w.Write(topology.ExportDOT(graph)); err != nil {
			s.logger.Error().Err(err).Msg("Failed to write DOT response")
		}

		return
	}

	s.encodeJSONResponse(w, http.StatusOK, graph)
}

func (s *APIServer) getVLANs(w http.ResponseWriter, _ *http.Request) {
	groups := s.registry.VLANGroups()
	if groups == nil {
		groups = []models.VLANGroup{}
	}

	s.encodeJSONResponse(w, http.StatusOK, map[string]interface{}{"vlans": groups})
}

func (s *APIServer) getAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts := s.evaluator.Alerts()
	if alerts == nil {
		alerts = []models.Alert{}
	}

	s.encodeJSONResponse(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (s *APIServer) postAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.evaluator.Acknowledge(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, alerting.ErrAlertNotFound) {
			s.writeError(w, "alert not found", http.StatusNotFound)
			return
		}

		s.writeError(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// postDeviceBackup fetches the device configuration over SSH and stores it.
func (s *APIServer) postDeviceBackup(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		s.writeError(w, "backup is not configured", http.StatusServiceUnavailable)
		return
	}

	dev, ok := s.registry.GetDevice(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, "device not found", http.StatusNotFound)
		return
	}

	entry, err := s.backups.BackupDevice(r.Context(), dev)
	if err != nil {
		if errors.Is(err, backup.ErrBackupDisabled) {
			s.writeError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		s.writeError(w, err.Error(), http.StatusBadGateway)

		return
	}

	s.encodeJSONResponse(w, http.StatusCreated, entry)
}

func (s *APIServer) getDeviceBackups(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		s.writeError(w, "backup is not configured", http.StatusServiceUnavailable)
		return
	}

	dev, ok := s.registry.GetDevice(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, "device not found", http.StatusNotFound)
		return
	}

	entries, err := s.backups.List(dev.IP)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.encodeJSONResponse(w, http.StatusOK, map[string]interface{}{"backups": entries})
}
