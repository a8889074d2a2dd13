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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "core.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidateFromFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"listen_addr": ":9000",
		"snmp": {"community": "lab", "version": "v2c"},
		"discovery": {
			"default_network_range": "192.168.1.0/24",
			"interval": "1m",
			"probe_timeout": "2s",
			"max_concurrent_probes": 5
		}
	}`)

	var cfg models.CoreConfig

	loader := NewConfig(logger.NewTestLogger())
	require.NoError(t, loader.LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "lab", cfg.SNMP.Community)
	assert.Equal(t, "192.168.1.0/24", cfg.Discovery.DefaultRange)
	assert.Equal(t, time.Minute, cfg.Discovery.Interval.Std())
	assert.Equal(t, 2*time.Second, cfg.Discovery.ProbeTimeout.Std())
	assert.Equal(t, 5, cfg.Discovery.MaxConcurrent)

	// Defaults filled by Validate.
	assert.Equal(t, 3, cfg.Discovery.MissThreshold)
	assert.Equal(t, 3, cfg.Alerting.CloseThreshold)
}

func TestLoadAndValidateRejectsBadRange(t *testing.T) {
	path := writeConfigFile(t, `{
		"snmp": {"community": "public"},
		"discovery": {"default_network_range": "not-a-cidr"}
	}`)

	var cfg models.CoreConfig

	loader := NewConfig(logger.NewTestLogger())
	err := loader.LoadAndValidate(context.Background(), path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid default network range")
}

func TestLoadAndValidateMissingFile(t *testing.T) {
	var cfg models.CoreConfig

	loader := NewConfig(logger.NewTestLogger())
	err := loader.LoadAndValidate(context.Background(), "/nonexistent/core.json", &cfg)
	require.Error(t, err)
}

func TestEnvConfigLoader(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("VLANVISION_LISTEN_ADDR", ":8099")
	t.Setenv("VLANVISION_SNMP_COMMUNITY", "lab")
	t.Setenv("VLANVISION_DISCOVERY_DEFAULT_NETWORK_RANGE", "10.0.0.0/28")
	t.Setenv("VLANVISION_DISCOVERY_INTERVAL", "45s")
	t.Setenv("VLANVISION_DISCOVERY_MAX_CONCURRENT_PROBES", "7")

	var cfg models.CoreConfig

	loader := NewConfig(logger.NewTestLogger())
	require.NoError(t, loader.LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, ":8099", cfg.ListenAddr)
	assert.Equal(t, "lab", cfg.SNMP.Community)
	assert.Equal(t, "10.0.0.0/28", cfg.Discovery.DefaultRange)
	assert.Equal(t, 45*time.Second, cfg.Discovery.Interval.Std())
	assert.Equal(t, 7, cfg.Discovery.MaxConcurrent)
}

func TestEnvConfigJSONOverride(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("VLANVISION_CONFIG_JSON", `{"listen_addr": ":7777", "snmp": {"community": "blob"}}`)

	var cfg models.CoreConfig

	loader := NewConfig(logger.NewTestLogger())
	require.NoError(t, loader.LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, "blob", cfg.SNMP.Community)
}

func TestInvalidConfigSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "carrier-pigeon")

	var cfg models.CoreConfig

	loader := NewConfig(logger.NewTestLogger())
	err := loader.LoadAndValidate(context.Background(), "", &cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errInvalidConfigSource)
}
