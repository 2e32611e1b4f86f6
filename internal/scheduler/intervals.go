package scheduler

import "time"

// Interval is one selectable sync cadence
type Interval struct {
	Key   string        `json:"key"`
	Label string        `json:"label"`
	Every time.Duration `json:"-"`
}

// intervals is the selectable cadence table, ordered for display
var intervals = []Interval{
	{Key: "5min", Label: "Every 5 minutes", Every: 5 * time.Minute},
	{Key: "15min", Label: "Every 15 minutes", Every: 15 * time.Minute},
	{Key: "30min", Label: "Every 30 minutes", Every: 30 * time.Minute},
	{Key: "hourly", Label: "Hourly", Every: time.Hour},
	{Key: "2hours", Label: "Every 2 hours", Every: 2 * time.Hour},
	{Key: "4hours", Label: "Every 4 hours", Every: 4 * time.Hour},
	{Key: "6hours", Label: "Every 6 hours", Every: 6 * time.Hour},
	{Key: "12hours", Label: "Every 12 hours", Every: 12 * time.Hour},
	{Key: "daily", Label: "Daily", Every: 24 * time.Hour},
	{Key: "2days", Label: "Every 2 days", Every: 48 * time.Hour},
	{Key: "weekly", Label: "Weekly", Every: 7 * 24 * time.Hour},
}

// Intervals lists the selectable cadences
func Intervals() []Interval {
	out := make([]Interval, len(intervals))
	copy(out, intervals)
	return out
}

// IntervalDuration resolves an interval key to its duration
func IntervalDuration(key string) (time.Duration, bool) {
	for _, interval := range intervals {
		if interval.Key == key {
			return interval.Every, true
		}
	}
	return 0, false
}

// ValidInterval reports whether key names a known cadence
func ValidInterval(key string) bool {
	_, ok := IntervalDuration(key)
	return ok
}
