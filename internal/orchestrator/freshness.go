package orchestrator

import (
	"time"

	"github.com/carter293/hasItPumped/internal/domain"
)

// Freshness decides whether a cached series can be served without refetching.
type Freshness struct {
	// SameDay accepts records updated on the current UTC calendar day.
	SameDay bool
	// Window accepts records younger than or equal to Window.
	// Used when SameDay is false.
	Window time.Duration
}

// DefaultFreshness serves a cached series for the rest of the UTC day it was fetched.
var DefaultFreshness = Freshness{SameDay: true}

// Fresh reports whether a record updated at lastUpdated is still fresh at now.
func (f Freshness) Fresh(lastUpdated, now time.Time) bool {
	if lastUpdated.After(now) {
		return true
	}
	if f.SameDay {
		return domain.Day(lastUpdated).Equal(domain.Day(now))
	}
	return now.Sub(lastUpdated) <= f.Window
}
