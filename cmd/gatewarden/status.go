// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/config"
)

// ServerStatus holds the probe results for a running server.
type ServerStatus struct {
	Addr  string `json:"addr"`
	Live  bool   `json:"live"`
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// newStatusCmd creates the status subcommand with all flags configured.
func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running Gatewarden server",
		Long:  `Probe the liveness and readiness endpoints of a running server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus probes the observability endpoints and prints the result.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	appCfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	status := probeServer(probeAddr(appCfg.Metrics.Addr))

	if cfg.jsonOutput {
		data, marshalErr := json.MarshalIndent(status, "", "  ")
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal status: %w", marshalErr)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(formatStatusTable(status))
	return nil
}

// probeAddr turns a listen address into a dialable one. A bare ":9090"
// listens on all interfaces; probe it via localhost.
func probeAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

// probeServer queries the liveness and readiness endpoints.
func probeServer(addr string) ServerStatus {
	status := ServerStatus{Addr: addr}
	client := &http.Client{Timeout: 2 * time.Second}

	liveResp, err := client.Get("http://" + addr + "/healthz/liveness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	_ = liveResp.Body.Close()
	status.Live = liveResp.StatusCode == http.StatusOK

	readyResp, err := client.Get("http://" + addr + "/healthz/readiness")
	if err != nil {
		status.Error = fmt.Sprintf("readiness probe failed: %v", err)
		return status
	}
	_ = readyResp.Body.Close()
	status.Ready = readyResp.StatusCode == http.StatusOK

	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ServerStatus) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ADDR\tLIVE\tREADY\tERROR")
	errText := "-"
	if status.Error != "" {
		errText = status.Error
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
		status.Addr, yesNo(status.Live), yesNo(status.Ready), errText)

	_ = w.Flush()
	return sb.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
