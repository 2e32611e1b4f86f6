// Package http is the JSON API transport: chi routing, request
// binding, and the mapping from domain errors onto the standard error
// envelope. Handlers hold no business logic; they delegate to the
// services layer.
package http
