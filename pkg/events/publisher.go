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

// Package events publishes engine state changes to external consumers.
// Consumers subscribe explicitly (NATS JetStream or the in-process hub);
// the engine never invokes consumer code directly.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vlanvision/vlanvision/pkg/models"
)

const (
	eventSource     = "vlanvision/discoveryd"
	cloudEventsSpec = "1.0"
	jsonContentType = "application/json"
)

//go:generate mockgen -destination=mock_publisher.go -package=events github.com/vlanvision/vlanvision/pkg/events Publisher

// Publisher delivers engine events. Implementations must be safe for
// concurrent use and must not block the caller indefinitely.
type Publisher interface {
	PublishDeviceUpdated(ctx context.Context, ev models.DeviceEvent) error
	PublishAlert(ctx context.Context, ev models.AlertEvent) error
	PublishJobCompleted(ctx context.Context, ev models.JobEvent) error
	PublishTopologyRebuilt(ctx context.Context, ev models.TopologyEvent) error
	Close() error
}

// newEnvelope wraps a payload in a CloudEvents v1.0 envelope.
func newEnvelope(eventType models.EventType, subject string, at time.Time, data interface{}) models.CloudEvent {
	return models.CloudEvent{
		SpecVersion:     cloudEventsSpec,
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            string(eventType),
		DataContentType: jsonContentType,
		Subject:         subject,
		Time:            &at,
		Data:            data,
	}
}

// NoopPublisher drops every event. Used when event publication is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishDeviceUpdated(context.Context, models.DeviceEvent) error     { return nil }
func (NoopPublisher) PublishAlert(context.Context, models.AlertEvent) error              { return nil }
func (NoopPublisher) PublishJobCompleted(context.Context, models.JobEvent) error         { return nil }
func (NoopPublisher) PublishTopologyRebuilt(context.Context, models.TopologyEvent) error { return nil }
func (NoopPublisher) Close() error                                                       { return nil }

// Fanout replicates every event to each wrapped publisher. The first error is
// returned after all publishers were attempted.
type Fanout struct {
	publishers []Publisher
}

func NewFanout(publishers ...Publisher) *Fanout {
	return &Fanout{publishers: publishers}
}

func (f *Fanout) PublishDeviceUpdated(ctx context.Context, ev models.DeviceEvent) error {
	return f.each(func(p Publisher) error { return p.PublishDeviceUpdated(ctx, ev) })
}

func (f *Fanout) PublishAlert(ctx context.Context, ev models.AlertEvent) error {
	return f.each(func(p Publisher) error { return p.PublishAlert(ctx, ev) })
}

func (f *Fanout) PublishJobCompleted(ctx context.Context, ev models.JobEvent) error {
	return f.each(func(p Publisher) error { return p.PublishJobCompleted(ctx, ev) })
}

func (f *Fanout) PublishTopologyRebuilt(ctx context.Context, ev models.TopologyEvent) error {
	return f.each(func(p Publisher) error { return p.PublishTopologyRebuilt(ctx, ev) })
}

func (f *Fanout) Close() error {
	return f.each(func(p Publisher) error { return p.Close() })
}

func (f *Fanout) each(fn func(Publisher) error) error {
	var firstErr error

	for _, p := range f.publishers {
		if err := fn(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
