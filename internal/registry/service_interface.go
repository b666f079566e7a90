// Package registry defines what the service registry starts and stops.
package registry

// Service is a long running part of a daemon. Start must not block; Stop returns once the
// service's goroutines have exited.
type Service interface {
	Start() error
	Stop() error
}
