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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

func deviceEvent(id string) models.DeviceEvent {
	return models.DeviceEvent{
		Device:    models.Device{ID: id, IP: "10.0.0.1"},
		Timestamp: time.Now(),
	}
}

func TestHubDeliversToSubscribers(t *testing.T) {
	h := NewHub(logger.NewTestLogger())
	defer func() { _ = h.Close() }()

	ch1, cancel1 := h.Subscribe()
	defer cancel1()

	ch2, cancel2 := h.Subscribe()
	defer cancel2()

	require.NoError(t, h.PublishDeviceUpdated(context.Background(), deviceEvent("d1")))

	for _, ch := range []<-chan models.CloudEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, string(models.EventDeviceUpdated), ev.Type)
			assert.Equal(t, "device/d1", ev.Subject)
			assert.Equal(t, "1.0", ev.SpecVersion)
			assert.NotEmpty(t, ev.ID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(logger.NewTestLogger())
	defer func() { _ = h.Close() }()

	ch, cancel := h.Subscribe()
	require.Equal(t, 1, h.SubscriberCount())

	cancel()
	assert.Zero(t, h.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// Double cancel is harmless.
	cancel()
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub(logger.NewTestLogger())
	defer func() { _ = h.Close() }()

	_, cancel := h.Subscribe()
	defer cancel()

	// Nobody drains the channel; overflow past the buffer must not block.
	for i := 0; i < defaultSubscriberBuffer+10; i++ {
		require.NoError(t, h.PublishTopologyRebuilt(context.Background(), models.TopologyEvent{Timestamp: time.Now()}))
	}

	assert.EqualValues(t, 10, h.Dropped())
}

func TestHubSubscribeAfterClose(t *testing.T) {
	h := NewHub(logger.NewTestLogger())
	require.NoError(t, h.Close())

	ch, cancel := h.Subscribe()
	defer cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after close is a no-op, not a panic.
	assert.NoError(t, h.PublishAlert(context.Background(), models.AlertEvent{Timestamp: time.Now()}))
}

func TestFanoutReplicates(t *testing.T) {
	h1 := NewHub(logger.NewTestLogger())
	h2 := NewHub(logger.NewTestLogger())

	ch1, cancel1 := h1.Subscribe()
	defer cancel1()

	ch2, cancel2 := h2.Subscribe()
	defer cancel2()

	fan := NewFanout(h1, NoopPublisher{}, h2)
	require.NoError(t, fan.PublishJobCompleted(context.Background(), models.JobEvent{
		Job:       models.DiscoveryJob{ID: "j1"},
		Timestamp: time.Now(),
	}))

	for _, ch := range []<-chan models.CloudEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "job/j1", ev.Subject)
		case <-time.After(time.Second):
			t.Fatal("fanout did not reach subscriber")
		}
	}

	require.NoError(t, fan.Close())
}
