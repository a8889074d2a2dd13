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

// Package probe implements the single-target discovery techniques and the
// bounded pool that fans them out across an address range. Probes are
// read-only: their only side effect is the network call itself.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

// Prober performs one discovery technique against one address. It never
// blocks past the timeout it was constructed with; on failure it returns a
// *ProbeError carrying the failure taxonomy.
type Prober interface {
	Technique() models.ProbeTechnique
	Probe(ctx context.Context, target string) (*models.ProbeResult, error)
}

// NewProbers builds the prober set for the requested techniques.
func NewProbers(
	techniques []models.ProbeTechnique,
	snmp models.SNMPSettings,
	timeout time.Duration,
	log logger.Logger,
) (map[models.ProbeTechnique]Prober, error) {
	if len(techniques) == 0 {
		return nil, ErrNoProbers
	}

	probers := make(map[models.ProbeTechnique]Prober, len(techniques))

	for _, t := range techniques {
		switch t {
		case models.TechniqueSNMP:
			probers[t] = NewSNMPProber(snmp, timeout, log)
		case models.TechniqueARP:
			probers[t] = NewARPProber(timeout, log)
		case models.TechniqueNeighbors:
			probers[t] = NewNeighborProber(snmp, timeout, log)
		case models.TechniquePorts:
			probers[t] = NewPortProber(timeout, log)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownTechnique, t)
		}
	}

	return probers, nil
}
