package ratelimit

import "time"

// Clock abstracts time so token buckets and sweepers can be driven
// deterministically in tests (see the fakeClock in token_bucket_test.go).
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by the system monotonic clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
