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

package discovery

import (
	"fmt"
	"net/netip"
)

// minPrefixBits caps a scan at a /16: larger ranges are almost certainly a
// typo and would queue tens of millions of probes.
const minPrefixBits = 16

// ParsePrefix accepts CIDR notation or a bare address (treated as a host
// route). The returned prefix is masked to its canonical form.
func ParsePrefix(s string) (netip.Prefix, error) {
	if prefix, err := netip.ParsePrefix(s); err == nil {
		return prefix.Masked(), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %s", ErrInvalidCIDR, s)
	}

	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// ExpandTargets enumerates the probe targets of a range. For IPv4 prefixes
// shorter than /31 the network and broadcast addresses are skipped; /31 and
// /32 enumerate every address per RFC 3021. IPv6 is host routes only.
func ExpandTargets(s string) ([]string, error) {
	prefix, err := ParsePrefix(s)
	if err != nil {
		return nil, err
	}

	if prefix.Addr().Is6() {
		if prefix.Bits() != 128 {
			return nil, fmt.Errorf("%w: %s (IPv6 ranges are not enumerable)", ErrRangeTooLarge, s)
		}

		return []string{prefix.Addr().String()}, nil
	}

	if prefix.Bits() < minPrefixBits {
		return nil, fmt.Errorf("%w: %s", ErrRangeTooLarge, s)
	}

	switch prefix.Bits() {
	case 32:
		return []string{prefix.Addr().String()}, nil
	case 31:
		first := prefix.Addr()
		return []string{first.String(), first.Next().String()}, nil
	}

	var targets []string

	for addr := prefix.Addr().Next(); prefix.Contains(addr); addr = addr.Next() {
		targets = append(targets, addr.String())
	}

	// The last enumerated address is the broadcast address.
	if len(targets) > 0 {
		targets = targets[:len(targets)-1]
	}

	return targets, nil
}
