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
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// statusResponse combines engine counters with host health.
type statusResponse struct {
	Status     string      `json:"status"`
	UptimeSecs int64       `json:"uptime_seconds"`
	Engine     engineStats `json:"engine"`
	Host       hostStats   `json:"host"`
}

type engineStats struct {
	Devices    int `json:"devices"`
	OpenAlerts int `json:"open_alerts"`
	Jobs       int `json:"jobs"`
	ActiveJobs int `json:"active_jobs"`
}

type hostStats struct {
	Hostname      string  `json:"hostname,omitempty"`
	Platform      string  `json:"platform,omitempty"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
}

// getStatus reports engine and host health.
//
// @Summary Service status
// @Produce json
// @Success 200 {object} statusResponse
// @Router /api/status [get]
func (s *APIServer) getStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		UptimeSecs: int64(time.Since(s.startedAt).Seconds()),
	}

	if s.registry != nil {
		resp.Engine.Devices = s.registry.Count()
	}

	if s.evaluator != nil {
		resp.Engine.OpenAlerts = s.evaluator.OpenCount()
	}

	if s.engine != nil {
		jobs := s.engine.Jobs()
		resp.Engine.Jobs = len(jobs)

		for i := range jobs {
			if !jobs[i].Finished() {
				resp.Engine.ActiveJobs++
			}
		}
	}

	resp.Host = collectHostStats()

	s.encodeJSONResponse(w, http.StatusOK, resp)
}

// collectHostStats tolerates partial failure: whatever gopsutil cannot read
// is left zero rather than failing the endpoint.
func collectHostStats() hostStats {
	var stats hostStats

	if info, err := host.Info(); err == nil {
		stats.Hostname = info.Hostname
		stats.Platform = info.Platform
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = vm.UsedPercent
		stats.MemoryTotalMB = vm.Total / (1024 * 1024)
	}

	return stats
}
