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
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS devices (
	id         TEXT PRIMARY KEY,
	ip         TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_devices_ip ON devices(ip);

CREATE TABLE IF NOT EXISTS discovery_jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

type postgresStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

func newPostgresStore(ctx context.Context, dsn string, log logger.Logger) (*postgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying postgres schema: %w", err)
	}

	log.Info().Msg("Connected to postgres history store")

	return &postgresStore{pool: pool, logger: log}, nil
}

func (s *postgresStore) SaveDevice(ctx context.Context, dev *models.Device) error {
	data, err := json.Marshal(dev)
	if err != nil {
		return fmt.Errorf("marshaling device %s: %w", dev.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO devices (id, ip, data, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET ip = EXCLUDED.ip, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		dev.ID, dev.IP, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving device %s: %w", dev.ID, err)
	}

	return nil
}

func (s *postgresStore) SaveJob(ctx context.Context, job *models.DiscoveryJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job %s: %w", job.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO discovery_jobs (id, status, data, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		job.ID, string(job.Status), data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving job %s: %w", job.ID, err)
	}

	return nil
}

func (s *postgresStore) SaveAlert(ctx context.Context, alert *models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshaling alert %s: %w", alert.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO alerts (id, state, data, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		alert.ID, string(alert.State), data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving alert %s: %w", alert.ID, err)
	}

	return nil
}

func (s *postgresStore) LoadDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM devices ORDER BY ip`)
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}

		var dev models.Device
		if err := json.Unmarshal(data, &dev); err != nil {
			s.logger.Warn().Err(err).Msg("Skipping undecodable device row")
			continue
		}

		devices = append(devices, dev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}

	return devices, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
