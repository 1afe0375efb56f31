// Package scheduler triggers named jobs on cron or interval schedules.
//
// Jobs run on the cron goroutine pool with a per-run timeout. A job whose
// previous run is still in flight is skipped for that tick.
package scheduler
