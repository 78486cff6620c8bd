package platform

import (
	"errors"
	"fmt"
	"os"
)

// ErrPrivilegeMismatch is returned when the updater runs as a user other
// than the owner of the installation.
var ErrPrivilegeMismatch = errors.New("privilege mismatch")

// geteuid is a test seam for os.Geteuid.
var geteuid = os.Geteuid

// RequireOwner fails unless the effective user id equals uid. Updating an
// installation as another user would leave files the agent cannot read.
// On platforms without user ids (Windows) the check always passes.
func RequireOwner(uid int) error {
	euid := geteuid()
	if euid == -1 {
		return nil
	}
	if euid != uid {
		return fmt.Errorf("%w: running as uid %d, but the installation is owned by uid %d; re-run as that user", ErrPrivilegeMismatch, euid, uid)
	}
	return nil
}
