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

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

const (
	defaultStreamName    = "network-events"
	defaultSubjectPrefix = "events.network"
	streamMaxAge         = 24 * time.Hour
)

// NATSPublisher writes CloudEvents JSON to JetStream subjects
// <prefix>.{device,alert,job,topology}.
type NATSPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
	logger logger.Logger
}

// NewNATSPublisher connects to NATS and ensures the event stream exists.
func NewNATSPublisher(ctx context.Context, cfg models.EventsConfig, log logger.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("vlanvision-discoveryd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	streamName := cfg.StreamName
	if streamName == "" {
		streamName = defaultStreamName
	}

	prefix := cfg.Subject
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{prefix + ".>"},
		Storage:  jetstream.FileStorage,
		MaxAge:   streamMaxAge,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensuring stream %s: %w", streamName, err)
	}

	log.Info().
		Str("url", cfg.NATSURL).
		Str("stream", streamName).
		Msg("Connected to NATS JetStream")

	return &NATSPublisher{
		nc:     nc,
		js:     js,
		prefix: prefix,
		logger: log,
	}, nil
}

func (p *NATSPublisher) PublishDeviceUpdated(ctx context.Context, ev models.DeviceEvent) error {
	return p.publish(ctx, models.EventDeviceUpdated, p.prefix+".device", ev.Timestamp, ev)
}

func (p *NATSPublisher) PublishAlert(ctx context.Context, ev models.AlertEvent) error {
	return p.publish(ctx, models.EventAlertChanged, p.prefix+".alert", ev.Timestamp, ev)
}

func (p *NATSPublisher) PublishJobCompleted(ctx context.Context, ev models.JobEvent) error {
	return p.publish(ctx, models.EventJobCompleted, p.prefix+".job", ev.Timestamp, ev)
}

func (p *NATSPublisher) PublishTopologyRebuilt(ctx context.Context, ev models.TopologyEvent) error {
	return p.publish(ctx, models.EventTopologyRebuilt, p.prefix+".topology", ev.Timestamp, ev)
}

func (p *NATSPublisher) publish(ctx context.Context, eventType models.EventType, subject string, at time.Time, data interface{}) error {
	envelope := newEnvelope(eventType, subject, at, data)

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", eventType, err)
	}

	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publishing %s event: %w", eventType, err)
	}

	return nil
}

func (p *NATSPublisher) Close() error {
	p.nc.Close()
	return nil
}
