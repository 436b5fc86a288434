package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"localipc/internal/transport"
)

const probeTimeout = 500 * time.Millisecond

type endpointRow struct {
	name     string
	address  string
	modified time.Time
	status   statusKind
	detail   string
}

func newEndpointsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "List endpoints in the socket directory and probe whether they accept connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rows, err := scanEndpoints(cmd.Context(), cfg.Transport.SocketDir, transport.New(cfg.TransportOptions()))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintf(out, "No endpoints in %s\n", cfg.Transport.SocketDir)
				return nil
			}
			fmt.Fprintln(out, renderEndpoints(rows, shouldColorize(out)))
			return nil
		},
	}
}

// scanEndpoints lists <name>.sock files and dials each one.
func scanEndpoints(ctx context.Context, dir string, tr transport.Transport) ([]endpointRow, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.sock"))
	if err != nil {
		return nil, fmt.Errorf("scan socket directory: %w", err)
	}
	sort.Strings(matches)

	rows := make([]endpointRow, 0, len(matches))
	for _, path := range matches {
		info, err := os.Lstat(path)
		if err != nil || info.Mode()&os.ModeSocket == 0 {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(path), ".sock")
		row := endpointRow{name: name, address: path, modified: info.ModTime()}
		row.status, row.detail = probeEndpoint(ctx, tr, name)
		rows = append(rows, row)
	}
	return rows, nil
}

func probeEndpoint(ctx context.Context, tr transport.Transport, name string) (statusKind, string) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	conn, err := tr.Dial(probeCtx, name)
	if err != nil {
		if errors.Is(err, transport.ErrNoEndpoint) {
			return statusWarn, "stale"
		}
		return statusError, err.Error()
	}
	_ = conn.Close()
	return statusOK, "listening"
}

func renderEndpoints(rows []endpointRow, colorize bool) string {
	headers := []string{"Name", "Status", "Modified", "Address"}
	body := make([][]string, 0, len(rows))
	for _, row := range rows {
		body = append(body, []string{
			row.name,
			renderStatus(row.status, row.detail, colorize),
			row.modified.Local().Format(time.DateTime),
			row.address,
		})
	}
	return renderTable(headers, body, []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft})
}
