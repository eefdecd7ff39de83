// Package scheduler triggers named interval jobs on top of robfig/cron.
//
// Each schedule has a fixed first-run delay, a period, and a per-run timeout.
// Runs of the same schedule never overlap: a trigger that fires while the
// previous run is still in flight is skipped and logged.
package scheduler
