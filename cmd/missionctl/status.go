package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"missionctl/internal/config"
	"missionctl/internal/task/scheduler"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running server for scheduler status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statusAddr string

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", config.DefaultHTTPAddr, "server address (host:port or URL)")
}

func fetchStatus(ctx context.Context, addr string) (scheduler.Snapshot, error) {
	base := strings.TrimRight(strings.TrimSpace(addr), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/cron/status", nil)
	if err != nil {
		return scheduler.Snapshot{}, errors.Wrap(err, "build request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return scheduler.Snapshot{}, errors.Wrapf(err, "query %s", base)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return scheduler.Snapshot{}, errors.Newf("query %s: unexpected status %s", base, resp.Status)
	}
	var snap scheduler.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return scheduler.Snapshot{}, errors.Wrap(err, "decode status")
	}
	return snap, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := fetchStatus(ctx, statusAddr)
	if err != nil {
		return err
	}

	state := pterm.Red("stopped")
	if snap.Running {
		state = pterm.Green("running")
	}
	last := "never"
	if !snap.LastReconcile.IsZero() {
		last = humanize.Time(snap.LastReconcile)
	}
	pterm.DefaultSection.Println("Scheduler")
	pterm.Printfln("  State:          %s", state)
	pterm.Printfln("  Timezone:       %s (%s)", snap.Timezone, snap.ZoneLabel)
	pterm.Printfln("  Reconcile:      every %s, last %s", snap.Interval, last)
	pterm.Printfln("  Active entries: %d", snap.ActiveCount)

	if len(snap.Entries) > 0 {
		data := pterm.TableData{{"Job", "Schedule", "Next run"}}
		for _, e := range snap.Entries {
			data = append(data, []string{
				e.ID,
				scheduler.DescribeSchedule(e.Schedule, snap.ZoneLabel),
				fmt.Sprintf("%s (%s)", e.NextRun.Format(time.RFC3339), humanize.Time(e.NextRun)),
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
	}

	if len(snap.History) > 0 {
		pterm.DefaultSection.Println("Recent runs")
		data := pterm.TableData{{"Job", "Started", "Took", "Result"}}
		for _, h := range snap.History {
			res := pterm.Green(string(h.Result))
			if h.Error != "" {
				res = pterm.Red(string(h.Result)) + ": " + h.Error
			}
			data = append(data, []string{
				h.Name,
				humanize.Time(h.Started),
				h.Duration.Round(time.Millisecond).String(),
				res,
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}
	return nil
}
