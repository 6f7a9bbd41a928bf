package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"socsync/internal/alerts"
	"socsync/internal/backend"
	"socsync/internal/store"
	"socsync/pkg/models"
)

type snapshotSummary struct {
	FetchedAt time.Time                  `json:"fetched_at"`
	Alerts    int                        `json:"alerts"`
	Incidents int                        `json:"incidents"`
	Queues    map[alerts.Queue]int       `json:"queues"`
	Statuses  map[models.AlertStatus]int `json:"statuses"`
}

func newSnapshotCmd(configArg *string) *cobra.Command {
	var (
		output string
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch the current alerts and incidents once and summarize them by queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configArg)
			if err != nil {
				return err
			}
			if err := initLogging(cfg); err != nil {
				return err
			}

			client, err := newBackendClient(cfg.SocSync.Backend)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			filter := backend.AlertFilter{Status: models.AlertStatus(status), Limit: limit}
			summary, list, err := takeSnapshot(ctx, client, filter)
			if err != nil {
				return err
			}

			if output != "" {
				if err := writeJSONLines(output, list); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Alerts written to %s\n", output)
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}

	cmd.Flags().StringVarP(&output, "out", "o", "", "write normalized alerts as JSONL to this path")
	cmd.Flags().StringVar(&status, "status", "", "only fetch alerts in this status")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum alerts to fetch (0 = backend default)")

	return cmd
}

// takeSnapshot fetches both collections concurrently and routes the alerts
// through a store so risk levels are derived the same way the console does.
func takeSnapshot(ctx context.Context, client *backend.Client, filter backend.AlertFilter) (snapshotSummary, []*models.Alert, error) {
	var (
		alertPage    models.Page[*models.Alert]
		incidentPage models.Page[*models.Incident]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		alertPage, err = client.FetchAlerts(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		incidentPage, err = client.FetchIncidents(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return snapshotSummary{}, nil, fmt.Errorf("fetch snapshot: %w", err)
	}

	st := store.NewAlerts()
	st.Set(alertPage.Items)
	list := st.All()
	store.SortAlerts(list, store.SortByRisk)

	summary := snapshotSummary{
		FetchedAt: time.Now().UTC(),
		Alerts:    len(list),
		Incidents: len(incidentPage.Items),
		Queues:    make(map[alerts.Queue]int, len(alerts.Queues)),
		Statuses:  make(map[models.AlertStatus]int),
	}
	for _, q := range alerts.Queues {
		summary.Queues[q] = len(store.AlertsInQueue(st, q))
	}
	for _, a := range list {
		summary.Statuses[a.Status]++
	}
	return summary, list, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONLines[T any](path string, rows []T) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range rows {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
