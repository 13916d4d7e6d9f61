// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
)

const statusTimeout = 2 * time.Second

// ServerStatus is what the health endpoints of a running server report.
type ServerStatus struct {
	Addr   string `json:"addr"`
	Live   bool   `json:"live"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

type statusConfig struct {
	jsonOutput bool
	addr       string
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running gatehouse server",
		Long: `Query the liveness and readiness endpoints of a running server.
The address defaults to the configured metrics address.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg, os.Environ)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().StringVar(&cfg.addr, "addr", "", "metrics address to query (default: from config)")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig, environ func() []string) error {
	addr := cfg.addr
	if addr == "" {
		opts, err := loadOptions(cmd, environ)
		if err != nil {
			return err
		}
		loaded, err := config.Read(opts)
		if err != nil {
			return err
		}
		addr = loaded.Metrics.Addr
	}
	if addr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "metrics.addr").Errorf("metrics address is disabled; pass --addr")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()
	status := queryServerStatus(ctx, &http.Client{Timeout: statusTimeout}, addr)

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Print(formatStatusTable(status))
	return nil
}

// queryServerStatus probes liveness then readiness. A server that is not
// live is not asked about readiness.
func queryServerStatus(ctx context.Context, client *http.Client, addr string) ServerStatus {
	status := ServerStatus{Addr: addr}
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	ok, detail := probe(ctx, client, base+"/healthz/liveness")
	if !ok {
		status.Detail = detail
		return status
	}
	status.Live = true

	status.Ready, detail = probe(ctx, client, base+"/healthz/readiness")
	if !status.Ready {
		status.Detail = detail
	}
	return status
}

func probe(ctx context.Context, client *http.Client, url string) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode != http.StatusOK {
		return false, strings.TrimSpace(fmt.Sprintf("%d %s", resp.StatusCode, body))
	}
	return true, ""
}

func formatStatusTable(status ServerStatus) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ADDR\tLIVE\tREADY\tDETAIL")
	detail := status.Detail
	if detail == "" {
		detail = "-"
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", status.Addr, yesNo(status.Live), yesNo(status.Ready), detail)

	_ = w.Flush()
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
