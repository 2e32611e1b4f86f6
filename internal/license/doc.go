// Package license owns activation, verification, and gating of the
// product license. The Guard is the single authority on whether
// execution is currently authorized: it talks to the license API,
// persists state through the StateStore, and applies the offline grace
// period so a transient outage of the license server never halts an
// otherwise healthy installation.
package license
