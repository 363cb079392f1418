package job

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// LeaseSource identifies how a lease duration was resolved.
type LeaseSource string

const (
	// LeaseSourceExplicit indicates the caller supplied a positive duration.
	LeaseSourceExplicit LeaseSource = "explicit"
	// LeaseSourceDefault indicates the default duration was used.
	LeaseSourceDefault LeaseSource = "default"
	// LeaseSourceClamped indicates the requested duration was clamped to the minimum supported value.
	LeaseSourceClamped LeaseSource = "clamped"
)

// LeasePolicy turns caller-supplied lease durations into the whole-second
// leases the reservation query expects. A zero request falls back to the
// configured default; anything below one second clamps up to one second so a
// reserved job can never carry an already-expired lease.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default lease duration.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// LeaseDecision captures the outcome of resolving a lease request.
type LeaseDecision struct {
	Seconds   int
	Source    LeaseSource
	Requested time.Duration
}

// UsedDefault reports whether the policy fell back to the default lease.
func (d LeaseDecision) UsedDefault() bool {
	return d.Source == LeaseSourceDefault
}

// Clamped reports whether the requested value was adjusted to stay within bounds.
func (d LeaseDecision) Clamped() bool {
	return d.Source == LeaseSourceClamped
}

// Resolve normalises the requested duration to a whole number of seconds.
func (p *LeasePolicy) Resolve(request time.Duration) LeaseDecision {
	if p == nil {
		return LeaseDecision{Source: LeaseSourceDefault, Requested: request}
	}

	if request == 0 {
		seconds, _ := wholeSeconds(p.defaultLease)
		return LeaseDecision{Seconds: seconds, Source: LeaseSourceDefault, Requested: request}
	}

	if request < 0 {
		return LeaseDecision{Seconds: 1, Source: LeaseSourceClamped, Requested: request}
	}

	seconds, clamped := wholeSeconds(request)
	source := LeaseSourceExplicit
	if clamped {
		source = LeaseSourceClamped
	}
	return LeaseDecision{Seconds: seconds, Source: source, Requested: request}
}

// wholeSeconds truncates a duration to seconds, clamping into [1, MaxInt].
func wholeSeconds(d time.Duration) (int, bool) {
	seconds := int64(d / time.Second)
	switch {
	case seconds <= 0:
		return 1, true
	case seconds > int64(math.MaxInt):
		return math.MaxInt, true
	default:
		return int(seconds), false
	}
}
