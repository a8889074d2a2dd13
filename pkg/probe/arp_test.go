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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleARPTable = `IP address       HW type     Flags       HW address            Mask     Device
192.168.1.1      0x1         0x2         aa:bb:cc:00:00:01     *        eth0
192.168.1.5      0x1         0x0         00:00:00:00:00:00     *        eth0
192.168.1.7      0x1         0x2         DE:AD:BE:EF:00:07     *        eth0
`

func TestFindMACInARPTable(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		wantMAC string
	}{
		{"resolved entry", "192.168.1.1", "AA:BB:CC:00:00:01"},
		{"incomplete entry yields nothing", "192.168.1.5", ""},
		{"mixed case normalized", "192.168.1.7", "DE:AD:BE:EF:00:07"},
		{"absent ip", "192.168.1.99", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mac, err := findMACInARPTable(strings.NewReader(sampleARPTable), tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMAC, mac)
		})
	}
}

func TestFindMACInARPTableEmpty(t *testing.T) {
	mac, err := findMACInARPTable(strings.NewReader(""), "192.168.1.1")
	require.NoError(t, err)
	assert.Empty(t, mac)
}
