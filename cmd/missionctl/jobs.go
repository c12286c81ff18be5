package main

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"missionctl/internal/app"
	"missionctl/internal/task/jobs"
	"missionctl/internal/task/scheduler"
	logx "missionctl/pkg/logx"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List and edit jobs in the store",
	Long: `Edit the job store directly. A running server applies the changes on its
next reconciliation pass (or immediately after POST /api/cron/reconcile).`,
}

var jobsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List jobs",
	Args:    cobra.NoArgs,
	RunE:    runJobsList,
}

var jobsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a job",
	Args:  cobra.NoArgs,
	RunE:  runJobsAdd,
}

var jobsEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Set a job active",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setStatus(args[0], jobs.StatusActive) },
}

var jobsDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Set a job disabled",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setStatus(args[0], jobs.StatusDisabled) },
}

var jobsRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a job",
	Args:    cobra.ExactArgs(1),
	RunE:    runJobsRm,
}

var (
	addName     string
	addSchedule string
	addID       string
	addDisabled bool
)

func init() {
	jobsAddCmd.Flags().StringVar(&addName, "name", "", "job name (required)")
	jobsAddCmd.Flags().StringVar(&addSchedule, "schedule", "", `five-field cron expression, e.g. "30 9 * * *" (required)`)
	jobsAddCmd.Flags().StringVar(&addID, "id", "", "job id (default: generated)")
	jobsAddCmd.Flags().BoolVar(&addDisabled, "disabled", false, "create the job disabled")
	_ = jobsAddCmd.MarkFlagRequired("name")
	_ = jobsAddCmd.MarkFlagRequired("schedule")

	jobsCmd.AddCommand(jobsListCmd, jobsAddCmd, jobsEnableCmd, jobsDisableCmd, jobsRmCmd)
}

func withJobStore(fn func(ctx context.Context, js *jobs.Store) error) error {
	js, closeFn, err := app.OpenJobStore(cfgPath, logx.NewConsole("WARN"))
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, js)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	return withJobStore(func(ctx context.Context, js *jobs.Store) error {
		list, err := js.ListJobs(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			pterm.Info.Println("No jobs")
			return nil
		}
		data := pterm.TableData{{"ID", "Name", "Schedule", "Status", "Next run", "Last result"}}
		for _, j := range list {
			data = append(data, []string{
				j.ID,
				j.Name,
				scheduler.DescribeSchedule(j.Schedule, ""),
				string(j.Status),
				relTime(j.NextRun),
				lastResult(j),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	})
}

func relTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return humanize.Time(*t)
}

func lastResult(j jobs.Record) string {
	switch j.LastResult {
	case "":
		return "-"
	case jobs.ResultSuccess:
		if j.LastDuration != nil {
			d := time.Duration(*j.LastDuration) * time.Millisecond
			return pterm.Green("success") + " (" + d.String() + ", " + relTime(j.LastRun) + ")"
		}
		return pterm.Green("success")
	case jobs.ResultError:
		return pterm.Red("error") + ": " + j.LastError
	default:
		return pterm.Yellow(string(j.LastResult))
	}
}

func runJobsAdd(cmd *cobra.Command, args []string) error {
	status := jobs.StatusActive
	if addDisabled {
		status = jobs.StatusDisabled
	}
	return withJobStore(func(ctx context.Context, js *jobs.Store) error {
		job, err := js.CreateJob(ctx, jobs.NewJob{ID: addID, Name: addName, Schedule: addSchedule, Status: status})
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Created %s (%s): %s", job.ID, job.Name, scheduler.DescribeSchedule(job.Schedule, ""))
		return nil
	})
}

func setStatus(id string, status jobs.Status) error {
	return withJobStore(func(ctx context.Context, js *jobs.Store) error {
		job, ok, err := js.UpdateJob(ctx, id, jobs.Update{Status: &status})
		if err != nil {
			return err
		}
		if !ok {
			return errors.Newf("job %s not found", id)
		}
		pterm.Success.Printfln("%s is now %s", job.ID, job.Status)
		return nil
	})
}

func runJobsRm(cmd *cobra.Command, args []string) error {
	return withJobStore(func(ctx context.Context, js *jobs.Store) error {
		ok, err := js.DeleteJob(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return errors.Newf("job %s not found", args[0])
		}
		pterm.Success.Printfln("Deleted %s", args[0])
		return nil
	})
}
