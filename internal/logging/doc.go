// Package logging builds the updater's structured logger. Runs without a
// terminal (cron, systemd timers) log into a temporary file that is
// replayed on stderr only when the run fails, so successful scheduled runs
// stay silent.
package logging
