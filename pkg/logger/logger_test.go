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

package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      *Config
		expectError bool
	}{
		{
			name:   "nil config uses defaults",
			config: nil,
		},
		{
			name:   "debug config",
			config: &Config{Level: "debug", Debug: true, Output: "stdout"},
		},
		{
			name:   "stderr output",
			config: &Config{Level: "warn", Output: "stderr"},
		},
		{
			name:        "invalid level",
			config:      &Config{Level: "shouting"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.config)

			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, log)

				return
			}

			require.NoError(t, err)
			require.NotNil(t, log)
		})
	}
}

func TestSetDebug(t *testing.T) {
	log, err := New(&Config{Level: "info"})
	require.NoError(t, err)

	impl, ok := log.(*loggerImpl)
	require.True(t, ok)

	log.SetDebug(true)
	assert.Equal(t, zerolog.DebugLevel, impl.logger.GetLevel())

	log.SetDebug(false)
	assert.Equal(t, zerolog.InfoLevel, impl.logger.GetLevel())
}

func TestNewWithComponent(t *testing.T) {
	log, err := NewWithComponent("registry", &Config{Level: "info"})
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNewTestLogger(t *testing.T) {
	log := NewTestLogger()
	require.NotNil(t, log)

	// Must be safe to use every event type on a disabled logger.
	log.Trace().Msg("trace")
	log.Debug().Msg("debug")
	log.Info().Msg("info")
	log.Warn().Msg("warn")
	log.Error().Msg("error")
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotEmpty(t, config.Level)
	assert.NotEmpty(t, config.Output)
}
