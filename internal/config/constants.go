package config

// Missing SKU policy actions. Applied by the reconciliation engine to
// catalog products whose SKU is absent from the parsed feed.
const (
	// MissingSKUIgnore leaves missing products untouched
	MissingSKUIgnore = "ignore"
	// MissingSKUZero sets the stock quantity of missing products to 0
	MissingSKUZero = "zero"
	// MissingSKUPrivate hides missing products and restores them when
	// their SKU reappears in the feed
	MissingSKUPrivate = "private"
)

// Trigger names registered with the durable trigger store
const (
	// TriggerSync is the recurring stock reconciliation trigger
	TriggerSync = "sync"
	// TriggerWatchdog is the fixed-cadence watchdog trigger
	TriggerWatchdog = "watchdog"
	// TriggerLicenseCheck is the daily license re-validation trigger
	TriggerLicenseCheck = "license_check"
)
