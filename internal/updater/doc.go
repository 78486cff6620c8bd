// Package updater implements the agentd update state machine. It compares
// the installed version with the latest release on the configured channel,
// downloads the artifact and its sha256sums.txt manifest into a private
// workspace, verifies the checksum, coordinates with running instances and
// hands over to the release's own installer. The checksum of the installed
// artifact is persisted so an unchanged release is skipped on the next run.
package updater
