// Package platform provides the host-level guards the updater relies on:
// permission bits, the install-owner privilege check, and the
// cross-process update lock. On Unix systems it uses native syscalls; on
// other systems the lock is a no-op and the owner check always passes.
package platform
