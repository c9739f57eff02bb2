// Package metrics defines the Prometheus instruments for the voice server
// on a per-server registry, so embedding multiple servers in one process
// never causes duplicate registration.
package metrics
