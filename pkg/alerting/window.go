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

package alerting

import "time"

type sample struct {
	at    time.Time
	value float64
}

// sampleWindow is a bounded ring of counter samples used by rate rules.
// Counters are cumulative; the rate is the delta between the oldest and
// newest retained samples divided by their time span.
type sampleWindow struct {
	samples []sample
	size    int
}

func newSampleWindow(size int) *sampleWindow {
	if size < 2 {
		size = 2
	}

	return &sampleWindow{size: size}
}

func (w *sampleWindow) Add(at time.Time, value float64) {
	w.samples = append(w.samples, sample{at: at, value: value})
	if len(w.samples) > w.size {
		w.samples = w.samples[len(w.samples)-w.size:]
	}
}

// RatePerSecond returns the observed counter rate, or (0, false) until two
// samples exist or when the counter reset backwards.
func (w *sampleWindow) RatePerSecond() (float64, bool) {
	if len(w.samples) < 2 {
		return 0, false
	}

	first := w.samples[0]
	last := w.samples[len(w.samples)-1]

	span := last.at.Sub(first.at).Seconds()
	if span <= 0 {
		return 0, false
	}

	delta := last.value - first.value
	if delta < 0 {
		// Counter wrap or device reboot; discard history.
		w.samples = w.samples[len(w.samples)-1:]
		return 0, false
	}

	return delta / span, true
}
