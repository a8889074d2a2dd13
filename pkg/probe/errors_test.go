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

package probe

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vlanvision/vlanvision/pkg/models"
)

func TestAsProbeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind models.ProbeErrorKind
	}{
		{
			name:     "existing probe error passes through",
			err:      NewProbeError("10.0.0.1", models.TechniqueSNMP, models.ProbeErrAuthFailure, errors.New("bad community")),
			wantKind: models.ProbeErrAuthFailure,
		},
		{
			name:     "wrapped probe error unwraps",
			err:      fmt.Errorf("probe: %w", NewProbeError("10.0.0.1", models.TechniqueARP, models.ProbeErrMalformed, nil)),
			wantKind: models.ProbeErrMalformed,
		},
		{
			name:     "deadline exceeded maps to timeout",
			err:      context.DeadlineExceeded,
			wantKind: models.ProbeErrTimeout,
		},
		{
			name:     "generic error maps to unreachable",
			err:      errors.New("connection refused"),
			wantKind: models.ProbeErrUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := AsProbeError("10.0.0.1", models.TechniqueSNMP, tt.err)
			assert.Equal(t, tt.wantKind, pe.Kind)
		})
	}
}

func TestProbeErrorPredicates(t *testing.T) {
	timeout := NewProbeError("h", models.TechniqueSNMP, models.ProbeErrTimeout, nil)
	auth := NewProbeError("h", models.TechniqueSNMP, models.ProbeErrAuthFailure, nil)

	assert.True(t, IsTimeout(timeout))
	assert.False(t, IsTimeout(auth))
	assert.True(t, IsAuthFailure(auth))
	assert.False(t, IsUnreachable(timeout))
	assert.False(t, IsMalformed(errors.New("plain")))
}

func TestClassifySNMPFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind models.ProbeErrorKind
	}{
		{"nil", nil, models.ProbeErrUnreachable},
		{"deadline", context.DeadlineExceeded, models.ProbeErrTimeout},
		{"request timeout text", errors.New("request timeout (after 3 retries)"), models.ProbeErrTimeout},
		{"auth text", errors.New("authentication failure"), models.ProbeErrAuthFailure},
		{"usm text", errors.New("unknown username"), models.ProbeErrAuthFailure},
		{"parse text", errors.New("unable to parse response PDU"), models.ProbeErrMalformed},
		{"refused", errors.New("connection refused"), models.ProbeErrUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, classifySNMPFailure(tt.err))
		})
	}
}
