//go:build !unix

package platform

// AcquireLock is a no-op on platforms without flock.
func AcquireLock(path string) (*Lock, error) {
	return &Lock{}, nil
}
