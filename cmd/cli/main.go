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

// vlanvision-cli is the operator client for the discoveryd HTTP API.
package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/vlanvision/vlanvision/pkg/models"
)

const appVersion = "1.0.0"

func main() {
	app := &cli.App{
		Name:    "vlanvision-cli",
		Usage:   "Query and control the vlanvision discovery daemon",
		Version: appVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8090",
				Usage:   "Base URL of the discoveryd API",
				EnvVars: []string{"VLANVISION_SERVER"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Aliases: []string{"k"},
				Usage:   "API key for authenticated endpoints",
				EnvVars: []string{"VLANVISION_API_KEY"},
			},
		},
		Commands: []*cli.Command{
			commandDevices(),
			commandDiscover(),
			commandJobs(),
			commandAlerts(),
			commandVLANs(),
			commandStatus(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func clientFrom(c *cli.Context) *apiClient {
	return newAPIClient(c.String("server"), c.String("api-key"))
}

func commandDevices() *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List devices in the registry",
		Action: func(c *cli.Context) error {
			var resp struct {
				Devices []models.Device `json:"devices"`
			}

			if err := clientFrom(c).get(c.Context, "/api/network/devices", &resp); err != nil {
				return err
			}

			if len(resp.Devices) == 0 {
				fmt.Println("No devices.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "IP\tHOSTNAME\tMAC\tTYPE\tVLAN\tSTATUS\tLAST SEEN")

			for i := range resp.Devices {
				d := &resp.Devices[i]

				vlan := "-"
				if d.VLANID != nil {
					vlan = strconv.Itoa(*d.VLANID)
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					d.IP, orDash(d.Hostname), orDash(d.MAC), d.Type, vlan,
					colorStatus(d.Status), formatTime(d.LastSeen))
			}

			return w.Flush()
		},
	}
}

func commandDiscover() *cli.Command {
	return &cli.Command{
		Name:      "discover",
		Usage:     "Queue a discovery scan of a CIDR range",
		ArgsUsage: "<cidr>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "technique",
				Usage: "Probe technique to use (arp, snmp, neighbors, ports); repeatable",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: discover <cidr>", 1)
			}

			req := models.DiscoveryRequest{NetworkRange: c.Args().First()}
			for _, t := range c.StringSlice("technique") {
				req.Techniques = append(req.Techniques, models.ProbeTechnique(t))
			}

			var resp struct {
				JobID  string `json:"job_id"`
				Status string `json:"status"`
			}

			if err := clientFrom(c).post(c.Context, "/api/network/discover", req, &resp); err != nil {
				return err
			}

			if resp.Status == "coalesced" {
				fmt.Printf("Range overlaps an active scan, joined job %s\n", color.CyanString(resp.JobID))
			} else {
				fmt.Printf("Scan queued as job %s\n", color.CyanString(resp.JobID))
			}

			return nil
		},
	}
}

func commandJobs() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "List discovery jobs, newest first",
		Subcommands: []*cli.Command{
			{
				Name:      "cancel",
				Usage:     "Cancel a pending or running job",
				ArgsUsage: "<job-id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("usage: jobs cancel <job-id>", 1)
					}

					id := c.Args().First()
					if err := clientFrom(c).do(c.Context, "DELETE", "/api/network/jobs/"+id, nil, nil); err != nil {
						return err
					}

					fmt.Printf("Job %s canceled\n", color.CyanString(id))

					return nil
				},
			},
		},
		Action: func(c *cli.Context) error {
			var resp struct {
				Jobs []models.DiscoveryJob `json:"jobs"`
			}

			if err := clientFrom(c).get(c.Context, "/api/network/jobs", &resp); err != nil {
				return err
			}

			if len(resp.Jobs) == 0 {
				fmt.Println("No jobs.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRANGE\tSTATUS\tPROGRESS\tFOUND\tCREATED")

			for i := range resp.Jobs {
				j := &resp.Jobs[i]
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%s\n",
					j.ID, j.NetworkRange, colorJobStatus(j.Status),
					j.TargetsDone, j.TargetsTotal, j.DevicesFound, formatTime(j.CreatedAt))
			}

			return w.Flush()
		},
	}
}

func commandAlerts() *cli.Command {
	return &cli.Command{
		Name:  "alerts",
		Usage: "List alerts, open first",
		Subcommands: []*cli.Command{
			{
				Name:      "ack",
				Usage:     "Acknowledge an open alert",
				ArgsUsage: "<alert-id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("usage: alerts ack <alert-id>", 1)
					}

					id := c.Args().First()
					if err := clientFrom(c).post(c.Context, "/api/network/alerts/"+id+"/acknowledge", nil, nil); err != nil {
						return err
					}

					fmt.Printf("Alert %s acknowledged\n", color.CyanString(id))

					return nil
				},
			},
		},
		Action: func(c *cli.Context) error {
			var resp struct {
				Alerts []models.Alert `json:"alerts"`
			}

			if err := clientFrom(c).get(c.Context, "/api/network/alerts", &resp); err != nil {
				return err
			}

			if len(resp.Alerts) == 0 {
				fmt.Println("No alerts.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRULE\tDEVICE\tSEVERITY\tSTATE\tMESSAGE")

			for i := range resp.Alerts {
				a := &resp.Alerts[i]

				target := a.DeviceID
				if a.InterfaceName != "" {
					target += "/" + a.InterfaceName
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					a.ID, a.RuleName, target, colorSeverity(a.Severity), a.State, a.Message)
			}

			return w.Flush()
		},
	}
}

func commandVLANs() *cli.Command {
	return &cli.Command{
		Name:  "vlans",
		Usage: "List VLAN groups",
		Action: func(c *cli.Context) error {
			var resp struct {
				VLANs []models.VLANGroup `json:"vlans"`
			}

			if err := clientFrom(c).get(c.Context, "/api/network/vlans", &resp); err != nil {
				return err
			}

			if len(resp.VLANs) == 0 {
				fmt.Println("No VLAN assignments.")
				return nil
			}

			sort.Slice(resp.VLANs, func(i, j int) bool { return resp.VLANs[i].VLANID < resp.VLANs[j].VLANID })

			for _, g := range resp.VLANs {
				fmt.Printf("%s %d devices\n", color.CyanString("VLAN %d:", g.VLANID), len(g.DeviceIDs))

				for _, id := range g.DeviceIDs {
					fmt.Printf("  %s\n", id)
				}
			}

			return nil
		},
	}
}

func commandStatus() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show daemon and host health",
		Action: func(c *cli.Context) error {
			var resp struct {
				Status     string `json:"status"`
				UptimeSecs int64  `json:"uptime_seconds"`
				Engine     struct {
					Devices    int `json:"devices"`
					OpenAlerts int `json:"open_alerts"`
					Jobs       int `json:"jobs"`
					ActiveJobs int `json:"active_jobs"`
				} `json:"engine"`
				Host struct {
					Hostname      string  `json:"hostname"`
					Platform      string  `json:"platform"`
					CPUPercent    float64 `json:"cpu_percent"`
					MemoryPercent float64 `json:"memory_percent"`
				} `json:"host"`
			}

			if err := clientFrom(c).get(c.Context, "/api/status", &resp); err != nil {
				return err
			}

			fmt.Printf("Status:      %s\n", color.GreenString(resp.Status))
			fmt.Printf("Uptime:      %s\n", (time.Duration(resp.UptimeSecs) * time.Second).String())
			fmt.Printf("Devices:     %d\n", resp.Engine.Devices)
			fmt.Printf("Open alerts: %d\n", resp.Engine.OpenAlerts)
			fmt.Printf("Jobs:        %d (%d active)\n", resp.Engine.Jobs, resp.Engine.ActiveJobs)

			if resp.Host.Hostname != "" {
				fmt.Printf("Host:        %s (%s), cpu %.1f%%, mem %.1f%%\n",
					resp.Host.Hostname, resp.Host.Platform, resp.Host.CPUPercent, resp.Host.MemoryPercent)
			}

			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Local().Format("2006-01-02 15:04:05")
}

func colorStatus(s models.DeviceStatus) string {
	switch s {
	case models.DeviceStatusUp:
		return color.GreenString(string(s))
	case models.DeviceStatusDegraded:
		return color.YellowString(string(s))
	case models.DeviceStatusDown:
		return color.RedString(string(s))
	case models.DeviceStatusRetired:
		return color.HiBlackString(string(s))
	default:
		return string(s)
	}
}

func colorJobStatus(s models.JobStatus) string {
	switch s {
	case models.JobStatusCompleted:
		return color.GreenString(string(s))
	case models.JobStatusRunning:
		return color.CyanString(string(s))
	case models.JobStatusFailed:
		return color.RedString(string(s))
	case models.JobStatusCanceled:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func colorSeverity(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return color.RedString(string(s))
	case models.SeverityHigh:
		return color.HiRedString(string(s))
	case models.SeverityMedium:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}
