package daily

import (
	"fmt"
	"strings"
	"time"
)

// NextMidnight returns the first local midnight strictly after t in loc.
// A nil loc uses t's own location. The result is built from the calendar
// date, so days that are 23 or 25 hours long around DST changes still reset
// at 00:00 local time.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = t.Location()
	}
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// LoadLocation resolves a timezone name. An empty name or "Local" selects
// the process' local zone.
func LoadLocation(name string) (*time.Location, error) {
	switch strings.TrimSpace(name) {
	case "", "Local", "local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// Policy yields the expiry instant for a write happening now.
type Policy struct {
	clock Clock
	loc   *time.Location
}

// NewPolicy builds a Policy. Nil arguments fall back to the system clock and
// the local timezone.
func NewPolicy(clock Clock, loc *time.Location) Policy {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	return Policy{clock: clock, loc: loc}
}

// Now returns the current time of the policy's clock.
func (p Policy) Now() time.Time { return p.clock.Now() }

// Expiry is the next local midnight after the current time.
func (p Policy) Expiry() time.Time { return NextMidnight(p.clock.Now(), p.loc) }

// Expired reports whether the instant at has been reached.
func (p Policy) Expired(at time.Time) bool {
	return !at.IsZero() && !p.clock.Now().Before(at)
}

// Location returns the timezone the policy resets in.
func (p Policy) Location() *time.Location { return p.loc }
