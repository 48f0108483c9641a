package ratelimit

import "time"

// Clock abstracts time.Now so TTL and rate-limit logic can be tested
// deterministically. Production code injects RealClock{}.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
