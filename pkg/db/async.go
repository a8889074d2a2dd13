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

package db

import (
	"context"
	"sync"
	"time"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

const (
	asyncQueueSize    = 256
	asyncWriteTimeout = 10 * time.Second
)

// AsyncStore decouples the discovery pipeline from store latency. Writes are
// queued to a single writer goroutine; a full queue or a failing backend logs
// and drops rather than stalling discovery. Reads go straight through.
type AsyncStore struct {
	inner   Store
	writeCh chan func(context.Context)
	done    chan struct{}
	wg      sync.WaitGroup
	logger  logger.Logger

	closeOnce sync.Once
}

// NewAsyncStore wraps a synchronous store. A nil inner store yields nil, so
// callers keep the simple `if store != nil` discipline.
func NewAsyncStore(inner Store, log logger.Logger) *AsyncStore {
	if inner == nil {
		return nil
	}

	s := &AsyncStore{
		inner:   inner,
		writeCh: make(chan func(context.Context), asyncQueueSize),
		done:    make(chan struct{}),
		logger:  log,
	}

	s.wg.Add(1)

	go s.writer()

	return s
}

func (s *AsyncStore) writer() {
	defer s.wg.Done()

	for write := range s.writeCh {
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		write(ctx)
		cancel()
	}
}

func (s *AsyncStore) enqueue(op string, write func(context.Context)) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.writeCh <- write:
	default:
		s.logger.Warn().Str("op", op).Msg("History store queue full, dropping write")
	}
}

func (s *AsyncStore) SaveDevice(_ context.Context, dev *models.Device) error {
	clone := *dev

	s.enqueue("save_device", func(ctx context.Context) {
		if err := s.inner.SaveDevice(ctx, &clone); err != nil {
			s.logger.Error().Err(err).Str("device_id", clone.ID).Msg("Failed to persist device")
		}
	})

	return nil
}

func (s *AsyncStore) SaveJob(_ context.Context, job *models.DiscoveryJob) error {
	clone := *job

	s.enqueue("save_job", func(ctx context.Context) {
		if err := s.inner.SaveJob(ctx, &clone); err != nil {
			s.logger.Error().Err(err).Str("job_id", clone.ID).Msg("Failed to persist job")
		}
	})

	return nil
}

func (s *AsyncStore) SaveAlert(_ context.Context, alert *models.Alert) error {
	clone := *alert

	s.enqueue("save_alert", func(ctx context.Context) {
		if err := s.inner.SaveAlert(ctx, &clone); err != nil {
			s.logger.Error().Err(err).Str("alert_id", clone.ID).Msg("Failed to persist alert")
		}
	})

	return nil
}

func (s *AsyncStore) LoadDevices(ctx context.Context) ([]models.Device, error) {
	return s.inner.LoadDevices(ctx)
}

// Close drains queued writes, then closes the backend.
func (s *AsyncStore) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.done)
		close(s.writeCh)
		s.wg.Wait()

		err = s.inner.Close()
	})

	return err
}

var _ Store = (*AsyncStore)(nil)
