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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS devices (
	id         TEXT PRIMARY KEY,
	ip         TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_devices_ip ON devices(ip);

CREATE TABLE IF NOT EXISTS discovery_jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// sqliteStore is the default single-binary backend.
type sqliteStore struct {
	db     *sql.DB
	logger logger.Logger
}

func newSQLiteStore(ctx context.Context, path string, log logger.Logger) (*sqliteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// modernc sqlite serializes writes; one connection avoids lock churn.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Opened sqlite history store")

	return &sqliteStore{db: conn, logger: log}, nil
}

func (s *sqliteStore) SaveDevice(ctx context.Context, dev *models.Device) error {
	data, err := json.Marshal(dev)
	if err != nil {
		return fmt.Errorf("marshaling device %s: %w", dev.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devices (id, ip, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET ip = excluded.ip, data = excluded.data, updated_at = excluded.updated_at`,
		dev.ID, dev.IP, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving device %s: %w", dev.ID, err)
	}

	return nil
}

func (s *sqliteStore) SaveJob(ctx context.Context, job *models.DiscoveryJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job %s: %w", job.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO discovery_jobs (id, status, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data, updated_at = excluded.updated_at`,
		job.ID, string(job.Status), string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving job %s: %w", job.ID, err)
	}

	return nil
}

func (s *sqliteStore) SaveAlert(ctx context.Context, alert *models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshaling alert %s: %w", alert.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, state, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, data = excluded.data, updated_at = excluded.updated_at`,
		alert.ID, string(alert.State), string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving alert %s: %w", alert.ID, err)
	}

	return nil
}

func (s *sqliteStore) LoadDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM devices ORDER BY ip`)
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var devices []models.Device

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}

		var dev models.Device
		if err := json.Unmarshal([]byte(data), &dev); err != nil {
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

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
