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
	"sync"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

const defaultSubscriberBuffer = 64

// Hub fans engine events out to in-process subscribers, primarily the
// websocket stream. Each subscriber gets a bounded buffer; a subscriber that
// falls behind loses events rather than backpressuring the engine.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]chan models.CloudEvent
	nextID  int
	buffer  int
	closed  bool
	dropped uint64
	logger  logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		subs:   make(map[int]chan models.CloudEvent),
		buffer: defaultSubscriberBuffer,
		logger: log,
	}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called when the subscriber goes away; it closes the channel.
func (h *Hub) Subscribe() (<-chan models.CloudEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan models.CloudEvent)
		close(ch)

		return ch, func() {}
	}

	id := h.nextID
	h.nextID++

	ch := make(chan models.CloudEvent, h.buffer)
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Dropped reports how many events were discarded because a subscriber's
// buffer was full.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.dropped
}

func (h *Hub) PublishDeviceUpdated(_ context.Context, ev models.DeviceEvent) error {
	h.broadcast(newEnvelope(models.EventDeviceUpdated, "device/"+ev.Device.ID, ev.Timestamp, ev))
	return nil
}

func (h *Hub) PublishAlert(_ context.Context, ev models.AlertEvent) error {
	h.broadcast(newEnvelope(models.EventAlertChanged, "alert/"+ev.Delta.Alert.ID, ev.Timestamp, ev))
	return nil
}

func (h *Hub) PublishJobCompleted(_ context.Context, ev models.JobEvent) error {
	h.broadcast(newEnvelope(models.EventJobCompleted, "job/"+ev.Job.ID, ev.Timestamp, ev))
	return nil
}

func (h *Hub) PublishTopologyRebuilt(_ context.Context, ev models.TopologyEvent) error {
	h.broadcast(newEnvelope(models.EventTopologyRebuilt, "topology", ev.Timestamp, ev))
	return nil
}

func (h *Hub) broadcast(event models.CloudEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.dropped++

			h.logger.Warn().
				Int("subscriber", id).
				Str("type", event.Type).
				Msg("Dropping event for slow subscriber")
		}
	}
}

// Close shuts the hub down and closes every subscriber channel.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	h.closed = true

	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}

	return nil
}

var _ Publisher = (*Hub)(nil)
