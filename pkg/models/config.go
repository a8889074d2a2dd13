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

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/vlanvision/vlanvision/pkg/logger"
)

// Duration wraps time.Duration so JSON configs can use strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// numeric values are nanoseconds
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// SNMPSettings is the credential and transport configuration handed to SNMP
// probes. Supplied externally; the engine does not own credential storage.
type SNMPSettings struct {
	Community string   `json:"community"`
	Version   string   `json:"version"` // "v1", "v2c", "v3"
	Port      uint16   `json:"port,omitempty"`
	Timeout   Duration `json:"timeout,omitempty"`
	Retries   int      `json:"retries,omitempty"`
}

// DiscoveryConfig drives the scheduler and prober pool.
type DiscoveryConfig struct {
	DefaultRange   string           `json:"default_network_range"`
	Interval       Duration         `json:"interval,omitempty"`
	JobTimeout     Duration         `json:"job_timeout,omitempty"`
	ProbeTimeout   Duration         `json:"probe_timeout,omitempty"`
	MaxConcurrent  int              `json:"max_concurrent_probes,omitempty"`
	MissThreshold  int              `json:"miss_threshold,omitempty"`
	Techniques     []ProbeTechnique `json:"techniques,omitempty"`
	RetentionAge   Duration         `json:"job_retention_age,omitempty"`
	RetentionCount int              `json:"job_retention_count,omitempty"`
	UnseenAfter    Duration         `json:"retire_unseen_after,omitempty"`
}

// AlertingConfig drives the alert evaluator.
type AlertingConfig struct {
	CloseThreshold int      `json:"close_threshold,omitempty"`
	WindowSize     int      `json:"window_size,omitempty"`
	RulesFile      string   `json:"rules_file,omitempty"`
	MinSeverity    Severity `json:"min_severity,omitempty"`
}

// EventsConfig configures event publication.
type EventsConfig struct {
	Enabled    bool   `json:"enabled"`
	NATSURL    string `json:"nats_url,omitempty"`
	StreamName string `json:"stream_name,omitempty"`
	Subject    string `json:"subject_prefix,omitempty"`
}

// DatabaseConfig selects the optional history store backend.
type DatabaseConfig struct {
	Type string `json:"type"` // "none", "sqlite", "postgres"
	Path string `json:"path,omitempty"`
	DSN  string `json:"dsn,omitempty"`
}

// BackupConfig drives device configuration backups over SSH.
type BackupConfig struct {
	Enabled  bool     `json:"enabled"`
	Dir      string   `json:"dir,omitempty"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	Timeout  Duration `json:"timeout,omitempty"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// CoreConfig is the top-level daemon configuration.
type CoreConfig struct {
	ListenAddr string          `json:"listen_addr"`
	APIKey     string          `json:"api_key,omitempty"`
	SNMP       SNMPSettings    `json:"snmp"`
	Discovery  DiscoveryConfig `json:"discovery"`
	Alerting   AlertingConfig  `json:"alerting"`
	Events     EventsConfig    `json:"events,omitempty"`
	Database   DatabaseConfig  `json:"database,omitempty"`
	Backup     BackupConfig    `json:"backup,omitempty"`
	Telemetry  TelemetryConfig `json:"telemetry,omitempty"`
	Logging    *logger.Config  `json:"logging,omitempty"`
}

const (
	defaultListenAddr     = ":8090"
	defaultInterval       = 5 * time.Minute
	defaultJobTimeout     = 10 * time.Minute
	defaultProbeTimeout   = 5 * time.Second
	defaultMaxConcurrent  = 10
	defaultMissThreshold  = 3
	defaultCloseThreshold = 3
	defaultWindowSize     = 10
	defaultRetentionAge   = time.Hour
	defaultRetentionCount = 100
	defaultSNMPPort       = 161
)

// Validate fills defaults and rejects unusable configuration.
func (c *CoreConfig) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.SNMP.Community == "" {
		c.SNMP.Community = "public"
	}

	if c.SNMP.Version == "" {
		c.SNMP.Version = "v2c"
	}

	if c.SNMP.Port == 0 {
		c.SNMP.Port = defaultSNMPPort
	}

	if c.SNMP.Timeout == 0 {
		c.SNMP.Timeout = Duration(defaultProbeTimeout)
	}

	if c.Discovery.DefaultRange != "" {
		if _, _, err := net.ParseCIDR(c.Discovery.DefaultRange); err != nil {
			return fmt.Errorf("%w: %s", errInvalidNetworkRange, c.Discovery.DefaultRange)
		}
	}

	if c.Discovery.Interval == 0 {
		c.Discovery.Interval = Duration(defaultInterval)
	}

	if c.Discovery.JobTimeout == 0 {
		c.Discovery.JobTimeout = Duration(defaultJobTimeout)
	}

	if c.Discovery.ProbeTimeout == 0 {
		c.Discovery.ProbeTimeout = Duration(defaultProbeTimeout)
	}

	if c.Discovery.MaxConcurrent <= 0 {
		c.Discovery.MaxConcurrent = defaultMaxConcurrent
	}

	if c.Discovery.MissThreshold <= 0 {
		c.Discovery.MissThreshold = defaultMissThreshold
	}

	if len(c.Discovery.Techniques) == 0 {
		c.Discovery.Techniques = []ProbeTechnique{TechniqueARP, TechniqueSNMP, TechniqueNeighbors}
	}

	if c.Discovery.RetentionAge == 0 {
		c.Discovery.RetentionAge = Duration(defaultRetentionAge)
	}

	if c.Discovery.RetentionCount <= 0 {
		c.Discovery.RetentionCount = defaultRetentionCount
	}

	if c.Alerting.CloseThreshold <= 0 {
		c.Alerting.CloseThreshold = defaultCloseThreshold
	}

	if c.Alerting.WindowSize <= 0 {
		c.Alerting.WindowSize = defaultWindowSize
	}

	if c.Events.Enabled && c.Events.NATSURL == "" {
		return errNATSURLRequired
	}

	switch c.Database.Type {
	case "", "none", "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: %s", errUnknownDatabaseType, c.Database.Type)
	}

	if c.Database.Type == "postgres" && c.Database.DSN == "" {
		return errPostgresDSNRequired
	}

	return nil
}
