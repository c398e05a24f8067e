package services

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// JST is Japan Standard Time. Japan observes no daylight saving, so a fixed
// zone is exact and needs no tzdata.
var JST = time.FixedZone("JST", 9*60*60)

// FreshnessPolicy decides whether cached rows may be served without a
// refetch. Disabled, any cached row counts as fresh.
type FreshnessPolicy struct {
	Enabled  bool
	Location *time.Location
	Clock    clockwork.Clock
}

// NewFreshnessPolicy builds a policy; a nil location means JST and a nil
// clock the real one.
func NewFreshnessPolicy(enabled bool, location *time.Location, clock clockwork.Clock) FreshnessPolicy {
	if location == nil {
		location = JST
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return FreshnessPolicy{
		Enabled:  enabled,
		Location: location,
		Clock:    clock,
	}
}

// IsFresh reports whether an office whose newest cached forecast date is
// latestDate (YYYY-MM-DD, "" when nothing is cached) can be served from cache.
// With the policy enabled the cache must still cover today.
func (p FreshnessPolicy) IsFresh(latestDate string) bool {
	if latestDate == "" {
		return false
	}
	if !p.Enabled {
		return true
	}
	return latestDate >= p.Today()
}

// Today returns the current date in the policy's location.
func (p FreshnessPolicy) Today() string {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	location := p.Location
	if location == nil {
		location = JST
	}
	return clock.Now().In(location).Format("2006-01-02")
}
