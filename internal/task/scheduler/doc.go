// Package scheduler keeps live cron timers in step with the job store.
//
// A reconciliation pass reads every job, schedules active jobs with valid
// expressions, and removes timers for jobs that were disabled, changed or
// deleted. Passes run on Start and then on a fixed interval. Each firing
// records run bookkeeping on the job before and after the job body runs.
//
// Failures never escape Start/Stop: they become logs, events and the
// persisted last_result/last_error fields.
package scheduler
