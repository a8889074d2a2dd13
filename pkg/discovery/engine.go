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

// Package discovery owns the scan lifecycle: periodic and on-demand jobs,
// the probe pool feeding the device registry, and the post-job pipeline
// (topology rebuild, alert evaluation, persistence, event publication).
package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vlanvision/vlanvision/pkg/alerting"
	"github.com/vlanvision/vlanvision/pkg/db"
	"github.com/vlanvision/vlanvision/pkg/events"
	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
	"github.com/vlanvision/vlanvision/pkg/probe"
	"github.com/vlanvision/vlanvision/pkg/registry"
	"github.com/vlanvision/vlanvision/pkg/telemetry"
	"github.com/vlanvision/vlanvision/pkg/topology"
)

const (
	jobQueueSize    = 16
	jobWorkers      = 2
	cleanupInterval = time.Minute
	drainTimeout    = 30 * time.Second
	maxJobWarnings  = 20
)

// Deps are the engine's collaborators. Publisher may be nil (events
// disabled); Store may be nil (persistence disabled).
type Deps struct {
	Pool      *probe.Pool
	Registry  *registry.Registry
	Topology  *topology.Builder
	Evaluator *alerting.Evaluator
	Publisher events.Publisher
	Store     db.Store
	Logger    logger.Logger
}

type jobEntry struct {
	job    *models.DiscoveryJob
	prefix netip.Prefix
	cancel context.CancelFunc
}

// Engine schedules discovery jobs and runs the reconciliation pipeline.
// Reads (Jobs, Graph, registry accessors) never block on a running scan.
type Engine struct {
	cfg       models.DiscoveryConfig
	pool      *probe.Pool
	registry  *registry.Registry
	topology  *topology.Builder
	evaluator *alerting.Evaluator
	publisher events.Publisher
	store     db.Store
	logger    logger.Logger

	mu        sync.RWMutex
	jobs      map[string]*jobEntry
	graph     *models.Graph
	neighbors map[string][]models.NeighborEntry

	jobCh     chan string
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	now       func() time.Time
}

func NewEngine(cfg models.DiscoveryConfig, deps Deps) *Engine {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	return &Engine{
		cfg:       cfg,
		pool:      deps.Pool,
		registry:  deps.Registry,
		topology:  deps.Topology,
		evaluator: deps.Evaluator,
		publisher: publisher,
		store:     deps.Store,
		logger:    deps.Logger,
		jobs:      make(map[string]*jobEntry),
		graph:     &models.Graph{Nodes: []models.GraphNode{}, Edges: []models.TopologyEdge{}},
		neighbors: make(map[string][]models.NeighborEntry),
		jobCh:     make(chan string, jobQueueSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// Start launches the job workers, the periodic scan ticker, and the
// retention sweeper. It returns immediately.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		for i := 0; i < jobWorkers; i++ {
			e.wg.Add(1)

			go func() {
				defer e.wg.Done()

				e.jobWorker(ctx)
			}()
		}

		e.wg.Add(1)

		go func() {
			defer e.wg.Done()

			e.periodicLoop(ctx)
		}()

		e.wg.Add(1)

		go func() {
			defer e.wg.Done()

			e.cleanupLoop(ctx)
		}()

		e.logger.Info().
			Str("default_range", e.cfg.DefaultRange).
			Dur("interval", e.cfg.Interval.Std()).
			Msg("Discovery engine started")
	})
}

// Stop cancels active jobs and waits for workers to drain, bounded by ctx
// and a hard timeout.
func (e *Engine) Stop(ctx context.Context) {
	e.stopOnce.Do(func() {
		close(e.done)

		e.mu.Lock()
		for _, entry := range e.jobs {
			if entry.cancel != nil && !entry.job.Finished() {
				entry.cancel()
			}
		}
		e.mu.Unlock()

		waitCh := make(chan struct{})

		go func() {
			e.wg.Wait()
			close(waitCh)
		}()

		select {
		case <-waitCh:
			e.logger.Info().Msg("Discovery engine stopped")
		case <-ctx.Done():
			e.logger.Warn().Msg("Discovery engine shutdown interrupted")
		case <-time.After(drainTimeout):
			e.logger.Warn().Msg("Discovery engine shutdown timed out")
		}
	})
}

// Submit queues a discovery job. When the requested range overlaps a job
// that is still pending or running, no new job is created and the existing
// job's ID is returned with coalesced=true.
func (e *Engine) Submit(_ context.Context, req models.DiscoveryRequest) (jobID string, coalesced bool, err error) {
	prefix, err := ParsePrefix(req.NetworkRange)
	if err != nil {
		return "", false, err
	}

	// Reject oversized ranges before they reach a worker.
	if _, err := ExpandTargets(req.NetworkRange); err != nil {
		return "", false, err
	}

	select {
	case <-e.done:
		return "", false, ErrEngineStopped
	default:
	}

	techniques := req.Techniques
	if len(techniques) == 0 {
		techniques = e.cfg.Techniques
	}

	source := req.Source
	if source == "" {
		source = "api"
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, entry := range e.jobs {
		if !entry.job.Finished() && entry.prefix.Overlaps(prefix) {
			e.logger.Debug().
				Str("job_id", entry.job.ID).
				Str("requested", req.NetworkRange).
				Str("active", entry.job.NetworkRange).
				Msg("Coalescing discovery request into active job")

			return entry.job.ID, true, nil
		}
	}

	job := &models.DiscoveryJob{
		ID:           uuid.New().String(),
		NetworkRange: prefix.String(),
		Techniques:   techniques,
		Status:       models.JobStatusPending,
		Source:       source,
		CreatedAt:    e.now(),
		Outcomes:     make(map[string]models.TargetOutcome),
	}

	select {
	case e.jobCh <- job.ID:
	default:
		return "", false, ErrJobQueueFull
	}

	e.jobs[job.ID] = &jobEntry{job: job, prefix: prefix}

	e.logger.Info().
		Str("job_id", job.ID).
		Str("range", job.NetworkRange).
		Str("source", source).
		Msg("Discovery job queued")

	return job.ID, false, nil
}

// Cancel stops a pending or running job. Cancellation halts dispatch of new
// probes; probes already in flight resolve and their results still apply.
func (e *Engine) Cancel(jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	if entry.job.Finished() {
		return ErrJobFinished
	}

	if entry.job.Status == models.JobStatusPending {
		entry.job.Status = models.JobStatusCanceled
		entry.job.EndedAt = e.now()

		return nil
	}

	if entry.cancel != nil {
		entry.cancel()
	}

	return nil
}

// Job returns a copy of one job.
func (e *Engine) Job(jobID string) (models.DiscoveryJob, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.jobs[jobID]
	if !ok {
		return models.DiscoveryJob{}, ErrJobNotFound
	}

	return cloneJob(entry.job), nil
}

// Jobs returns all retained jobs, newest first.
func (e *Engine) Jobs() []models.DiscoveryJob {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.DiscoveryJob, 0, len(e.jobs))
	for _, entry := range e.jobs {
		out = append(out, cloneJob(entry.job))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}

		return out[i].ID < out[j].ID
	})

	return out
}

// Graph returns the latest topology. The graph is immutable once built.
func (e *Engine) Graph() *models.Graph {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.graph
}

func (e *Engine) jobWorker(ctx context.Context) {
	for {
		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case jobID := <-e.jobCh:
			e.runJob(ctx, jobID)
		}
	}
}

func (e *Engine) periodicLoop(ctx context.Context) {
	if e.cfg.DefaultRange == "" {
		return
	}

	ticker := time.NewTicker(e.cfg.Interval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, coalesced, err := e.Submit(ctx, models.DiscoveryRequest{
				NetworkRange: e.cfg.DefaultRange,
				Source:       "periodic",
			})
			if err != nil {
				e.logger.Warn().Err(err).Msg("Periodic discovery submit failed")
			} else if coalesced {
				e.logger.Debug().Msg("Periodic discovery coalesced into active job")
			}
		}
	}
}

func (e *Engine) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.evictFinishedJobs()

			if e.cfg.UnseenAfter > 0 {
				cutoff := e.now().Add(-e.cfg.UnseenAfter.Std())
				if retired := e.registry.MarkUnseen(cutoff); len(retired) > 0 {
					e.logger.Info().Int("count", len(retired)).Msg("Retired unseen devices")
				}
			}
		}
	}
}

// evictFinishedJobs applies the age and count retention bounds.
func (e *Engine) evictFinishedJobs() {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-e.cfg.RetentionAge.Std())

	var finished []*jobEntry

	for id, entry := range e.jobs {
		if !entry.job.Finished() {
			continue
		}

		if entry.job.EndedAt.Before(cutoff) {
			delete(e.jobs, id)
			continue
		}

		finished = append(finished, entry)
	}

	if len(finished) <= e.cfg.RetentionCount {
		return
	}

	sort.Slice(finished, func(i, j int) bool {
		return finished[i].job.EndedAt.Before(finished[j].job.EndedAt)
	})

	for _, entry := range finished[:len(finished)-e.cfg.RetentionCount] {
		delete(e.jobs, entry.job.ID)
	}
}

func (e *Engine) runJob(ctx context.Context, jobID string) {
	e.mu.Lock()

	entry, ok := e.jobs[jobID]
	if !ok || entry.job.Status != models.JobStatusPending {
		// Canceled or evicted while queued.
		e.mu.Unlock()
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, e.cfg.JobTimeout.Std())
	entry.cancel = cancel
	entry.job.Status = models.JobStatusRunning
	entry.job.StartedAt = e.now()
	job := entry.job

	e.mu.Unlock()

	defer cancel()

	ctx, span := telemetry.Tracer("discovery").Start(ctx, "discovery.job",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.range", job.NetworkRange),
			attribute.String("job.source", job.Source),
		))
	defer span.End()

	targets, err := ExpandTargets(job.NetworkRange)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		e.finishJob(ctx, job, models.JobStatusFailed, err)

		return
	}

	units := make([]probe.Unit, 0, len(targets)*len(job.Techniques))

	for _, target := range targets {
		for _, technique := range job.Techniques {
			units = append(units, probe.Unit{Target: target, Technique: technique})
		}
	}

	e.mu.Lock()
	job.TargetsTotal = len(targets)
	e.mu.Unlock()

	canceled := e.consumeOutcomes(ctx, job, jobCtx, units, len(job.Techniques))

	status := models.JobStatusCompleted
	if canceled {
		status = models.JobStatusCanceled
	}

	span.SetAttributes(
		attribute.Int("job.targets", len(targets)),
		attribute.String("job.status", string(status)),
	)

	e.finishJob(ctx, job, status, nil)
}

// consumeOutcomes drains the pool stream, reconciling successes as they
// arrive and merging per-target outcomes across techniques. A target misses
// at most once per job, recorded only after every technique resolved and
// only when the merged outcome is timeout or unreachable.
func (e *Engine) consumeOutcomes(ctx context.Context, job *models.DiscoveryJob, jobCtx context.Context, units []probe.Unit, techniqueCount int) (canceled bool) {
	perTarget := make(map[string]models.TargetOutcome, len(units)/techniqueCount)
	remaining := make(map[string]int, len(units)/techniqueCount)

	for _, u := range units {
		remaining[u.Target]++
	}

	for outcome := range e.pool.Run(jobCtx, units) {
		target := outcome.Unit.Target

		if outcome.Result != nil {
			perTarget[target] = models.OutcomeSuccess
			e.applyResult(ctx, outcome.Result)
		} else if perTarget[target] != models.OutcomeSuccess {
			merged := models.OutcomeForProbeError(outcome.Err.Kind)
			if outcomeRank(merged) > outcomeRank(perTarget[target]) {
				perTarget[target] = merged
			}

			if outcome.Err.Kind == models.ProbeErrAuthFailure {
				e.addWarning(job, fmt.Sprintf("%s: authentication failure (%s)", target, outcome.Unit.Technique))
			}
		}

		remaining[target]--
		if remaining[target] == 0 {
			e.mu.Lock()
			job.TargetsDone++
			job.Outcomes[target] = perTarget[target]
			e.mu.Unlock()
		}
	}

	// Every technique for every target has resolved; record one miss per
	// target that gave no answer at all. Auth failures and malformed
	// responses came from a live device, so they never feed the miss
	// counter and the record stays at its prior reachability.
	devicesFound := 0

	for _, target := range sortedTargets(perTarget) {
		switch perTarget[target] {
		case models.OutcomeSuccess:
			devicesFound++
		case models.OutcomeTimeout, models.OutcomeUnreachable:
			e.recordMiss(ctx, target)
		}
	}

	e.mu.Lock()
	job.DevicesFound = devicesFound
	e.mu.Unlock()

	return contextCanceled(jobCtx)
}

func (e *Engine) applyResult(ctx context.Context, res *models.ProbeResult) {
	var oldStatus models.DeviceStatus
	if prev, ok := e.registry.GetDeviceByIP(res.Target); ok {
		oldStatus = prev.Status
	}

	dev, err := e.registry.Reconcile(res)
	if err != nil {
		e.logger.Warn().Err(err).Str("target", res.Target).Msg("Reconcile failed")
		return
	}

	if len(res.Neighbors) > 0 {
		e.mu.Lock()
		e.neighbors[res.Target] = res.Neighbors
		e.mu.Unlock()
	}

	if dev.Status != oldStatus {
		e.publishDevice(ctx, dev, oldStatus)
	}
}

func (e *Engine) recordMiss(ctx context.Context, target string) {
	var oldStatus models.DeviceStatus
	if prev, ok := e.registry.GetDeviceByIP(target); ok {
		oldStatus = prev.Status
	} else {
		return
	}

	dev := e.registry.RecordMiss(target)
	if dev == nil {
		return
	}

	if dev.Status != oldStatus {
		e.publishDevice(ctx, dev, oldStatus)
	}
}

func (e *Engine) publishDevice(ctx context.Context, dev *models.Device, oldStatus models.DeviceStatus) {
	err := e.publisher.PublishDeviceUpdated(ctx, models.DeviceEvent{
		Device:    *dev,
		OldStatus: oldStatus,
		Timestamp: e.now(),
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("device_id", dev.ID).Msg("Device event publish failed")
	}
}

func (e *Engine) addWarning(job *models.DiscoveryJob, warning string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(job.Warnings) < maxJobWarnings {
		job.Warnings = append(job.Warnings, warning)
	}
}

// finishJob marks the job terminal and runs the post-job pipeline: topology
// rebuild, alert evaluation, persistence, event publication.
func (e *Engine) finishJob(ctx context.Context, job *models.DiscoveryJob, status models.JobStatus, jobErr error) {
	e.mu.Lock()

	job.Status = status
	job.EndedAt = e.now()

	if jobErr != nil {
		job.Error = jobErr.Error()
	}

	jobCopy := cloneJob(job)

	e.mu.Unlock()

	snapshot := e.registry.Snapshot()

	activeIPs := make(map[string]struct{}, len(snapshot))
	for i := range snapshot {
		activeIPs[snapshot[i].IP] = struct{}{}
	}

	// Drop neighbor tables for addresses that no longer host an active
	// device, so retired or re-addressed devices stop feeding the graph.
	e.mu.Lock()

	for ip := range e.neighbors {
		if _, ok := activeIPs[ip]; !ok {
			delete(e.neighbors, ip)
		}
	}

	allNeighbors := make([]models.NeighborEntry, 0, len(e.neighbors))
	for _, entries := range e.neighbors {
		allNeighbors = append(allNeighbors, entries...)
	}

	e.mu.Unlock()

	graph := e.topology.Rebuild(snapshot, allNeighbors)

	e.mu.Lock()
	e.graph = graph
	e.mu.Unlock()

	deltas := e.evaluator.Evaluate(snapshot)

	e.logger.Info().
		Str("job_id", jobCopy.ID).
		Str("status", string(status)).
		Int("targets", jobCopy.TargetsTotal).
		Int("devices_found", jobCopy.DevicesFound).
		Int("alert_deltas", len(deltas)).
		Msg("Discovery job finished")

	now := e.now()

	for _, delta := range deltas {
		if err := e.publisher.PublishAlert(ctx, models.AlertEvent{Delta: delta, Timestamp: now}); err != nil {
			e.logger.Warn().Err(err).Msg("Alert event publish failed")
		}
	}

	if err := e.publisher.PublishJobCompleted(ctx, models.JobEvent{Job: jobCopy, Timestamp: now}); err != nil {
		e.logger.Warn().Err(err).Msg("Job event publish failed")
	}

	err := e.publisher.PublishTopologyRebuilt(ctx, models.TopologyEvent{
		NodeCount: len(graph.Nodes),
		EdgeCount: len(graph.Edges),
		Timestamp: now,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("Topology event publish failed")
	}

	e.persist(ctx, &jobCopy, snapshot, deltas)
}

func (e *Engine) persist(ctx context.Context, job *models.DiscoveryJob, devices []models.Device, deltas []models.AlertDelta) {
	if e.store == nil {
		return
	}

	if err := e.store.SaveJob(ctx, job); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("Job persist failed")
	}

	for i := range devices {
		if err := e.store.SaveDevice(ctx, &devices[i]); err != nil {
			e.logger.Error().Err(err).Str("device_id", devices[i].ID).Msg("Device persist failed")
		}
	}

	for i := range deltas {
		if err := e.store.SaveAlert(ctx, &deltas[i].Alert); err != nil {
			e.logger.Error().Err(err).Str("alert_id", deltas[i].Alert.ID).Msg("Alert persist failed")
		}
	}
}

// WarmStart seeds the registry from the history store so device IDs survive
// restarts. Missing store or empty history is not an error.
func (e *Engine) WarmStart(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	devices, err := e.store.LoadDevices(ctx)
	if err != nil {
		return fmt.Errorf("loading persisted devices: %w", err)
	}

	if len(devices) == 0 {
		return nil
	}

	e.registry.Load(devices)
	e.logger.Info().Int("count", len(devices)).Msg("Restored devices from history store")

	return nil
}

// outcomeRank orders failure outcomes for cross-technique merging: a more
// informative failure wins over a less informative one.
func outcomeRank(o models.TargetOutcome) int {
	switch o {
	case models.OutcomeSuccess:
		return 5
	case models.OutcomeAuthFailure:
		return 4
	case models.OutcomeError:
		return 3
	case models.OutcomeUnreachable:
		return 2
	case models.OutcomeTimeout:
		return 1
	default:
		return 0
	}
}

func sortedTargets(m map[string]models.TargetOutcome) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func contextCanceled(ctx context.Context) bool {
	return ctx.Err() == context.Canceled
}

func cloneJob(job *models.DiscoveryJob) models.DiscoveryJob {
	clone := *job

	clone.Techniques = append([]models.ProbeTechnique(nil), job.Techniques...)
	clone.Warnings = append([]string(nil), job.Warnings...)

	if job.Outcomes != nil {
		clone.Outcomes = make(map[string]models.TargetOutcome, len(job.Outcomes))
		for k, v := range job.Outcomes {
			clone.Outcomes[k] = v
		}
	}

	return clone
}
