// Package app assembles the service: configuration, storage, license
// guard, reconciliation engine, scheduler, and the HTTP API, with
// graceful startup and shutdown.
package app
