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
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

// classifierPorts are the services the device classifier cares about: ssh,
// telnet, http, snmp, https, smb, rdp, http-alt.
var classifierPorts = []int{22, 23, 80, 161, 443, 445, 3389, 8080}

// PortProber samples a fixed set of TCP ports as classification evidence for
// hosts that expose no SNMP agent.
type PortProber struct {
	timeout time.Duration
	logger  logger.Logger
	ports   []int
}

// NewPortProber creates a TCP port sampler over the classifier port set.
func NewPortProber(timeout time.Duration, log logger.Logger) *PortProber {
	return &PortProber{
		timeout: timeout,
		logger:  log,
		ports:   classifierPorts,
	}
}

func (*PortProber) Technique() models.ProbeTechnique {
	return models.TechniquePorts
}

func (p *PortProber) Probe(ctx context.Context, target string) (*models.ProbeResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		open []int
		wg   sync.WaitGroup
	)

	for _, port := range p.ports {
		wg.Add(1)

		go func(port int) {
			defer wg.Done()

			var dialer net.Dialer

			conn, err := dialer.DialContext(probeCtx, "tcp", net.JoinHostPort(target, strconv.Itoa(port)))
			if err != nil {
				return
			}

			_ = conn.Close()

			mu.Lock()
			open = append(open, port)
			mu.Unlock()
		}(port)
	}

	wg.Wait()

	if len(open) == 0 {
		err := fmt.Errorf("no classifier ports open")
		return nil, NewProbeError(target, models.TechniquePorts, models.ProbeErrUnreachable, err)
	}

	sort.Ints(open)

	return &models.ProbeResult{
		Target:    target,
		Technique: models.TechniquePorts,
		OpenPorts: open,
		Timestamp: time.Now(),
	}, nil
}
