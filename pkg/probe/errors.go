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
	"net"
	"strings"

	"github.com/vlanvision/vlanvision/pkg/models"
)

var (
	ErrUnknownTechnique = errors.New("unknown probe technique")
	ErrNoProbers        = errors.New("no probers configured")
)

// ProbeError is a typed probe failure. Every failing probe returns one so the
// scheduler can map failures onto job outcomes and the registry's miss
// accounting without string matching.
type ProbeError struct {
	Target    string
	Technique models.ProbeTechnique
	Kind      models.ProbeErrorKind
	Err       error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s probe of %s failed (%s): %v", e.Technique, e.Target, e.Kind, e.Err)
	}

	return fmt.Sprintf("%s probe of %s failed (%s)", e.Technique, e.Target, e.Kind)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// NewProbeError builds a typed probe failure.
func NewProbeError(target string, technique models.ProbeTechnique, kind models.ProbeErrorKind, err error) *ProbeError {
	return &ProbeError{Target: target, Technique: technique, Kind: kind, Err: err}
}

// AsProbeError coerces any error returned by a prober into a *ProbeError.
// Context expiry maps to timeout, everything else to unreachable.
func AsProbeError(target string, technique models.ProbeTechnique, err error) *ProbeError {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe
	}

	kind := models.ProbeErrUnreachable

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || isNetTimeout(err) {
		kind = models.ProbeErrTimeout
	}

	return NewProbeError(target, technique, kind, err)
}

func isNetTimeout(err error) bool {
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsTimeout reports whether err is a timeout probe failure.
func IsTimeout(err error) bool {
	return kindOf(err) == models.ProbeErrTimeout
}

// IsUnreachable reports whether err is an unreachable probe failure.
func IsUnreachable(err error) bool {
	return kindOf(err) == models.ProbeErrUnreachable
}

// IsAuthFailure reports whether err is a credential rejection.
func IsAuthFailure(err error) bool {
	return kindOf(err) == models.ProbeErrAuthFailure
}

// IsMalformed reports whether err is an unparseable-response failure.
func IsMalformed(err error) bool {
	return kindOf(err) == models.ProbeErrMalformed
}

func kindOf(err error) models.ProbeErrorKind {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	return ""
}

// classifySNMPFailure maps a gosnmp transport or protocol error onto the
// probe error taxonomy. SNMP agents that drop requests with a bad community
// look identical to dead hosts, so auth failures are only reported when the
// agent says so explicitly.
func classifySNMPFailure(err error) models.ProbeErrorKind {
	if err == nil {
		return models.ProbeErrUnreachable
	}

	if errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) {
		return models.ProbeErrTimeout
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "authentication"), strings.Contains(msg, "authorization"),
		strings.Contains(msg, "incorrect community"), strings.Contains(msg, "unknown username"),
		strings.Contains(msg, "wrong digest"), strings.Contains(msg, "decryption"):
		return models.ProbeErrAuthFailure
	case strings.Contains(msg, "unmarshal"), strings.Contains(msg, "parse"),
		strings.Contains(msg, "malformed"), strings.Contains(msg, "invalid packet"):
		return models.ProbeErrMalformed
	case strings.Contains(msg, "timeout"):
		return models.ProbeErrTimeout
	default:
		return models.ProbeErrUnreachable
	}
}
