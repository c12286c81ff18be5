// Package jobs holds the cron job record model and the Job Store that the
// scheduler reconciles against.
package jobs
