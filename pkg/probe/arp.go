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
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

const procNetARP = "/proc/net/arp"

// ARPProber establishes reachability with an ICMP echo (falling back to a UDP
// dial when raw sockets are unavailable) and then harvests the target's MAC
// from the kernel neighbor cache. It yields the MAC and nothing else.
type ARPProber struct {
	timeout time.Duration
	logger  logger.Logger

	arpTablePath string
}

// NewARPProber creates an ARP prober.
func NewARPProber(timeout time.Duration, log logger.Logger) *ARPProber {
	return &ARPProber{
		timeout:      timeout,
		logger:       log,
		arpTablePath: procNetARP,
	}
}

func (*ARPProber) Technique() models.ProbeTechnique {
	return models.TechniqueARP
}

func (p *ARPProber) Probe(ctx context.Context, target string) (*models.ProbeResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.touch(probeCtx, target); err != nil {
		return nil, AsProbeError(target, models.TechniqueARP, err)
	}

	result := &models.ProbeResult{
		Target:    target,
		Technique: models.TechniqueARP,
		Timestamp: time.Now(),
	}

	mac, err := p.lookupMAC(target)
	if err != nil {
		p.logger.Debug().Err(err).Str("target", target).Msg("neighbor cache lookup failed")
	}

	result.MAC = mac

	return result, nil
}

// touch sends one ICMP echo to populate the neighbor cache. Raw ICMP needs
// CAP_NET_RAW; without it the UDP fallback still triggers ARP resolution on
// the local segment even though the datagram itself goes nowhere.
func (p *ARPProber) touch(ctx context.Context, target string) error {
	if err := p.icmpEcho(ctx, target); err == nil {
		return nil
	} else if !isPermissionError(err) {
		return err
	}

	return p.udpTouch(ctx, target)
}

func (p *ARPProber) icmpEcho(ctx context.Context, target string) error {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  1,
			Data: []byte("vlanvision-discovery"),
		},
	}

	wb, err := msg.Marshal(nil)
	if err != nil {
		return err
	}

	dst := &net.IPAddr{IP: net.ParseIP(target)}
	if dst.IP == nil {
		return fmt.Errorf("invalid target address: %s", target)
	}

	if _, err := conn.WriteTo(wb, dst); err != nil {
		return err
	}

	rb := make([]byte, 1500)

	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			return err
		}

		if peer.String() != target {
			continue
		}

		parsed, err := icmp.ParseMessage(1, rb[:n])
		if err != nil {
			return NewProbeError(target, models.TechniqueARP, models.ProbeErrMalformed, err)
		}

		if parsed.Type == ipv4.ICMPTypeEchoReply {
			return nil
		}
	}
}

func (p *ARPProber) udpTouch(ctx context.Context, target string) error {
	var dialer net.Dialer

	// Port 9 is discard; nothing needs to answer, the dial just forces the
	// kernel to resolve the neighbor.
	conn, err := dialer.DialContext(ctx, "udp4", net.JoinHostPort(target, "9"))
	if err != nil {
		return err
	}

	_, _ = conn.Write([]byte{0})
	_ = conn.Close()

	// Give the kernel a moment to complete neighbor resolution.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}

	return nil
}

// lookupMAC reads the kernel ARP table for the target's hardware address.
func (p *ARPProber) lookupMAC(target string) (string, error) {
	f, err := os.Open(p.arpTablePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return findMACInARPTable(f, target)
}

// findMACInARPTable scans /proc/net/arp format output for the given IP.
func findMACInARPTable(r io.Reader, target string) (string, error) {
	scanner := bufio.NewScanner(r)

	// Header line.
	if !scanner.Scan() {
		return "", scanner.Err()
	}

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] != target {
			continue
		}

		mac := models.NormalizeMAC(fields[3])
		if mac == "" || mac == "00:00:00:00:00:00" {
			continue
		}

		return mac, nil
	}

	return "", scanner.Err()
}

func isPermissionError(err error) bool {
	return err != nil && (os.IsPermission(err) || strings.Contains(err.Error(), "operation not permitted"))
}
