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
	"sync"
	"time"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

const (
	defaultPoolConcurrency = 10
	workChannelMultiplier  = 2
)

// Unit is one target/technique pair, the pool's unit of work.
type Unit struct {
	Target    string
	Technique models.ProbeTechnique
}

// Outcome is the resolution of one unit: a result or a typed error, never
// both, never neither.
type Outcome struct {
	Unit   Unit
	Result *models.ProbeResult
	Err    *ProbeError
}

// Pool fans probe units out across a bounded set of workers. One unit's
// failure never aborts another; when the context expires, units not yet
// attempted are emitted as timeout outcomes rather than silently dropped.
type Pool struct {
	probers     map[models.ProbeTechnique]Prober
	concurrency int
	logger      logger.Logger
}

// NewPool creates a pool over the given probers.
func NewPool(probers map[models.ProbeTechnique]Prober, concurrency int, log logger.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = defaultPoolConcurrency
	}

	return &Pool{
		probers:     probers,
		concurrency: concurrency,
		logger:      log,
	}
}

// Run streams one Outcome per unit and closes the channel when every unit has
// resolved. The stream is lazy and finite; cancelling ctx stops dispatch
// immediately while in-flight probes run to their own timeouts.
func (p *Pool) Run(ctx context.Context, units []Unit) <-chan Outcome {
	resultCh := make(chan Outcome, len(units))
	workCh := make(chan Unit, p.concurrency*workChannelMultiplier)

	workers := p.concurrency
	if workers > len(units) {
		workers = len(units)
	}

	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			p.worker(ctx, workCh, resultCh)
		}()
	}

	go func() {
		defer close(workCh)

		for i, u := range units {
			select {
			case <-ctx.Done():
				// Everything not yet handed to a worker resolves as timeout.
				for _, missed := range units[i:] {
					resultCh <- timeoutOutcome(missed, ctx)
				}

				return
			case workCh <- u:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	return resultCh
}

func (p *Pool) worker(ctx context.Context, workCh <-chan Unit, resultCh chan<- Outcome) {
	for unit := range workCh {
		if ctx.Err() != nil {
			resultCh <- timeoutOutcome(unit, ctx)
			continue
		}

		resultCh <- p.runUnit(ctx, unit)
	}
}

func (p *Pool) runUnit(ctx context.Context, unit Unit) Outcome {
	prober, ok := p.probers[unit.Technique]
	if !ok {
		return Outcome{
			Unit: unit,
			Err:  NewProbeError(unit.Target, unit.Technique, models.ProbeErrUnreachable, ErrUnknownTechnique),
		}
	}

	start := time.Now()

	result, err := prober.Probe(ctx, unit.Target)
	if err != nil {
		pe := AsProbeError(unit.Target, unit.Technique, err)

		p.logger.Debug().
			Str("target", unit.Target).
			Str("technique", string(unit.Technique)).
			Str("kind", string(pe.Kind)).
			Dur("elapsed", time.Since(start)).
			Msg("probe failed")

		return Outcome{Unit: unit, Err: pe}
	}

	p.logger.Debug().
		Str("target", unit.Target).
		Str("technique", string(unit.Technique)).
		Dur("elapsed", time.Since(start)).
		Msg("probe succeeded")

	return Outcome{Unit: unit, Result: result}
}

func timeoutOutcome(unit Unit, ctx context.Context) Outcome {
	return Outcome{
		Unit: unit,
		Err:  NewProbeError(unit.Target, unit.Technique, models.ProbeErrTimeout, ctx.Err()),
	}
}
