package period

import "time"

// Resolver resolves period tokens against a clock in one location.
type Resolver struct {
	Location *time.Location
	Now      func() time.Time
}

// NewResolver returns a resolver on the wall clock in loc. A nil loc means
// time.Local.
func NewResolver(loc *time.Location) *Resolver {
	return &Resolver{Location: loc, Now: time.Now}
}

// Resolve turns token into a fresh Period. Empty or unrecognised tokens
// resolve to all time.
func (r *Resolver) Resolve(token string) Period {
	now := r.now()
	return Parse(token, now).Interval(now)
}

func (r *Resolver) now() time.Time {
	loc := time.Local
	if r != nil && r.Location != nil {
		loc = r.Location
	}
	now := time.Now
	if r != nil && r.Now != nil {
		now = r.Now
	}
	return now().In(loc)
}
