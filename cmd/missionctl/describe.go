package main

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"missionctl/internal/task/scheduler"
)

var describeCmd = &cobra.Command{
	Use:   "describe <expr>",
	Short: "Describe a cron expression in plain English",
	Long: `Describe a five-field cron expression ("minute hour day-of-month month day-of-week").

The expression may be quoted or passed as separate arguments.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDescribe,
}

var nextCmd = &cobra.Command{
	Use:   "next <expr>",
	Short: "Show upcoming fire times of a cron expression",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNext,
}

var (
	zoneTZ    string
	zoneLabel string
	nextCount int
)

func init() {
	for _, c := range []*cobra.Command{describeCmd, nextCmd} {
		c.Flags().StringVar(&zoneTZ, "tz", "America/New_York", "IANA timezone the expression is evaluated in")
		c.Flags().StringVar(&zoneLabel, "zone-label", "", "label shown in descriptions (default: the zone's standard abbreviation)")
	}
	nextCmd.Flags().IntVarP(&nextCount, "count", "n", 5, "number of fire times to show")
}

func exprArg(args []string) string {
	return strings.Join(strings.Fields(strings.Join(args, " ")), " ")
}

func runDescribe(cmd *cobra.Command, args []string) error {
	expr := exprArg(args)
	_, label, err := scheduler.LoadZone(zoneTZ, zoneLabel)
	if err != nil {
		return err
	}
	pterm.Println(scheduler.DescribeSchedule(expr, label))
	if err := scheduler.ValidateExpr(expr); err != nil {
		pterm.Warning.Println(err)
	}
	return nil
}

func runNext(cmd *cobra.Command, args []string) error {
	expr := exprArg(args)
	loc, label, err := scheduler.LoadZone(zoneTZ, zoneLabel)
	if err != nil {
		return err
	}
	if err := scheduler.ValidateExpr(expr); err != nil {
		return err
	}
	if nextCount <= 0 {
		nextCount = 1
	}
	runs, err := scheduler.NextRuns(expr, time.Now(), loc, nextCount)
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println(scheduler.DescribeSchedule(expr, label))
	data := pterm.TableData{{"#", "Time (" + loc.String() + ")", "In"}}
	for i, t := range runs {
		data = append(data, []string{
			humanize.Ordinal(i + 1),
			t.In(loc).Format("Mon 2006-01-02 15:04 MST"),
			humanize.Time(t),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
