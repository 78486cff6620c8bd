// Package config assembles the updater configuration from the agent's
// shell-style environment file and the AGENTD_-prefixed process environment.
// The result is validated against an embedded JSON schema and returned as an
// immutable Config that is passed explicitly to every component.
package config
