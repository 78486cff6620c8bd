// Package cli defines the Cobra command tree for agentd-updater. The root
// command performs an update; each other file registers one subcommand
// (check, doctor, config, version). Commands load the configuration, build
// the collaborators and delegate to internal packages for the actual work.
package cli
