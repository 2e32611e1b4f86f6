// Package scheduler keeps sync running on time. Triggers are stored in
// the database so cadence survives restarts, a ticker loop claims and
// dispatches whatever is due, a TTL lease keeps runs single-flight, and
// the watchdog re-arms schedules that go missing or stall.
package scheduler
