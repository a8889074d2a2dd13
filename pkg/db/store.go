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

// Package db is the optional history store. The in-memory registry stays
// authoritative; the store exists so device identities and job/alert history
// survive a restart. Records are persisted as JSON documents keyed by ID.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

var (
	ErrStoreClosed        = errors.New("store is closed")
	errUnknownStoreType   = errors.New("unknown store type")
	errSQLitePathRequired = errors.New("sqlite store requires a path")
)

// Store persists devices, jobs, and alerts. Saves are upserts by ID.
type Store interface {
	SaveDevice(ctx context.Context, dev *models.Device) error
	SaveJob(ctx context.Context, job *models.DiscoveryJob) error
	SaveAlert(ctx context.Context, alert *models.Alert) error
	LoadDevices(ctx context.Context) ([]models.Device, error)
	Close() error
}

// NewStore builds the configured backend. Type "none" (or empty) returns
// (nil, nil): persistence disabled.
func NewStore(ctx context.Context, cfg models.DatabaseConfig, log logger.Logger) (Store, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, errSQLitePathRequired
		}

		return newSQLiteStore(ctx, cfg.Path, log)
	case "postgres":
		return newPostgresStore(ctx, cfg.DSN, log)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownStoreType, cfg.Type)
	}
}
