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

// Package backup fetches device configurations over SSH and archives them as
// timestamped files. Backups are read-only against the device and never
// touch registry state.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

var (
	ErrBackupDisabled = errors.New("backup is not enabled")
	ErrEmptyConfig    = errors.New("device returned an empty configuration")
	errNoCredentials  = errors.New("backup credentials not configured")
)

const (
	defaultSSHTimeout = 30 * time.Second
	sshPort           = 22
	backupFileMode    = 0o600
	backupDirMode     = 0o750
)

// showCommandFor maps a manufacturer to its configuration dump command.
// Unknown vendors get the IOS-style default, which covers most of the
// enterprise switch market.
func showCommandFor(manufacturer string) string {
	switch strings.ToLower(manufacturer) {
	case "juniper":
		return "show configuration"
	case "mikrotik":
		return "/export"
	case "fortinet":
		return "show full-configuration"
	default:
		// Cisco, Arista, HP and lookalikes.
		return "show running-config"
	}
}

// Entry describes one stored backup file.
type Entry struct {
	DeviceIP  string    `json:"device_ip"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Service runs configuration backups against devices.
type Service struct {
	cfg    models.BackupConfig
	logger logger.Logger
	now    func() time.Time

	// dial is swapped in tests.
	dial func(ctx context.Context, addr string, config *ssh.ClientConfig) (sshSession, error)
}

// sshSession is the slice of *ssh.Session the service uses.
type sshSession interface {
	Output(cmd string) ([]byte, error)
	Close() error
}

func NewService(cfg models.BackupConfig, log logger.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: log,
		now:    time.Now,
		dial:   dialSSH,
	}
}

// BackupDevice connects to the device, dumps its configuration, and writes it
// under <dir>/<ip>/<timestamp>.cfg. It returns the stored entry.
func (s *Service) BackupDevice(ctx context.Context, dev *models.Device) (*Entry, error) {
	if !s.cfg.Enabled {
		return nil, ErrBackupDisabled
	}

	if s.cfg.Username == "" {
		return nil, errNoCredentials
	}

	timeout := s.cfg.Timeout.Std()
	if timeout == 0 {
		timeout = defaultSSHTimeout
	}

	clientConfig := &ssh.ClientConfig{
		User:            s.cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(s.cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // devices on the managed network, keys unknown ahead of discovery
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(dev.IP, fmt.Sprintf("%d", sshPort))

	session, err := s.dial(ctx, addr, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer func() { _ = session.Close() }()

	command := showCommandFor(dev.Manufacturer)

	output, err := session.Output(command)
	if err != nil {
		return nil, fmt.Errorf("running %q on %s: %w", command, dev.IP, err)
	}

	config := bytes.TrimSpace(output)
	if len(config) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyConfig, dev.IP)
	}

	entry, err := s.writeBackup(dev.IP, config)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("device_ip", dev.IP).
		Str("file", entry.Filename).
		Int64("bytes", entry.Size).
		Msg("Stored device configuration backup")

	return entry, nil
}

func (s *Service) writeBackup(ip string, config []byte) (*Entry, error) {
	dir := filepath.Join(s.cfg.Dir, ip)
	if err := os.MkdirAll(dir, backupDirMode); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	now := s.now().UTC()
	filename := now.Format("20060102T150405Z") + ".cfg"
	path := filepath.Join(dir, filename)

	if err := os.WriteFile(path, append(config, '\n'), backupFileMode); err != nil {
		return nil, fmt.Errorf("writing backup file: %w", err)
	}

	return &Entry{
		DeviceIP:  ip,
		Filename:  filename,
		Size:      int64(len(config)) + 1,
		CreatedAt: now,
	}, nil
}

// List returns the stored backups for one device, newest first.
func (s *Service) List(ip string) ([]Entry, error) {
	dir := filepath.Join(s.cfg.Dir, ip)

	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}

		return nil, fmt.Errorf("listing backups for %s: %w", ip, err)
	}

	entries := make([]Entry, 0, len(dirents))

	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".cfg") {
			continue
		}

		info, err := de.Info()
		if err != nil {
			continue
		}

		created, err := time.Parse("20060102T150405Z", strings.TrimSuffix(de.Name(), ".cfg"))
		if err != nil {
			created = info.ModTime().UTC()
		}

		entries = append(entries, Entry{
			DeviceIP:  ip,
			Filename:  de.Name(),
			Size:      info.Size(),
			CreatedAt: created,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })

	return entries, nil
}

// dialSSH opens a session over a fresh SSH connection. The context bounds the
// TCP dial; the SSH handshake is bounded by the client config timeout.
func dialSSH(ctx context.Context, addr string, config *ssh.ClientConfig) (sshSession, error) {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &clientSession{Session: session, client: client}, nil
}

// clientSession ties the client lifetime to the session so Close tears both
// down.
type clientSession struct {
	*ssh.Session
	client *ssh.Client
}

func (c *clientSession) Close() error {
	_ = c.Session.Close()
	return c.client.Close()
}
