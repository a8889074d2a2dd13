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

package models

import "time"

// JobStatus is the lifecycle state of a discovery job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// TargetOutcome is the per-target result of a discovery job.
type TargetOutcome string

const (
	OutcomeSuccess     TargetOutcome = "success"
	OutcomeTimeout     TargetOutcome = "timeout"
	OutcomeUnreachable TargetOutcome = "unreachable"
	OutcomeAuthFailure TargetOutcome = "auth_failure"
	OutcomeError       TargetOutcome = "error"
)

// OutcomeForProbeError maps a probe failure kind onto a job outcome.
func OutcomeForProbeError(kind ProbeErrorKind) TargetOutcome {
	switch kind {
	case ProbeErrTimeout:
		return OutcomeTimeout
	case ProbeErrUnreachable:
		return OutcomeUnreachable
	case ProbeErrAuthFailure:
		return OutcomeAuthFailure
	case ProbeErrMalformed:
		return OutcomeError
	default:
		return OutcomeError
	}
}

// DiscoveryRequest is an on-demand or scheduled scan request.
type DiscoveryRequest struct {
	NetworkRange string           `json:"network_range"`
	Techniques   []ProbeTechnique `json:"techniques,omitempty"`
	Source       string           `json:"source,omitempty"`
}

// DiscoveryJob is one bounded unit of scanning work over an address range.
// Jobs are created by the scheduler, move pending -> running ->
// completed|failed|canceled, and are retained after completion until evicted
// by the age- and count-bounded retention policy.
type DiscoveryJob struct {
	ID           string                   `json:"id"`
	NetworkRange string                   `json:"network_range"`
	Techniques   []ProbeTechnique         `json:"techniques"`
	Status       JobStatus                `json:"status"`
	Source       string                   `json:"source,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	StartedAt    time.Time                `json:"started_at,omitempty"`
	EndedAt      time.Time                `json:"ended_at,omitempty"`
	Error        string                   `json:"error,omitempty"`
	Warnings     []string                 `json:"warnings,omitempty"`
	Outcomes     map[string]TargetOutcome `json:"outcomes,omitempty"`
	TargetsTotal int                      `json:"targets_total"`
	TargetsDone  int                      `json:"targets_done"`
	DevicesFound int                      `json:"devices_found"`
}

// Finished reports whether the job has reached a terminal state.
func (j *DiscoveryJob) Finished() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}
