// Package services holds the business logic between the HTTP transport
// and the domain packages. Each service wraps one concern behind an
// interface so handlers stay thin and tests can substitute fakes.
package services
