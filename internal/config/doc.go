// Package config provides typed application configuration loaded from
// environment variables (prefix STOCKSYNC) layered over an optional YAML
// file, with a single defaulting and validation pass at load time.
//
// Static configuration lives here: server, logging, license client, and
// default feed/sync parameters. Settings the operator can change at
// runtime (feed URL, column bindings, missing-SKU policy, schedule
// interval, enabled flag) are owned by the settings store and only seeded
// from these defaults.
package config
