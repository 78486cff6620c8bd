// Package instance coordinates with a live agent before its installation is
// replaced. It finds running agent processes, asks them to flush persistent
// state, and tells the installer whether the service should be started
// again afterwards.
package instance
