// Package scheduler fires registered jobs on cron rules or once at a given
// time, evaluated in a configurable time zone.
//
// Jobs run on the cron goroutine with overlap protection: a firing that is
// still running makes the next one skip.
package scheduler
