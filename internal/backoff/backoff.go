package backoff

import (
	"math"
	"time"

	"github.com/skillswap/chainledger/pkg/config"
)

// Policy is an exponential backoff: Delay(n) = Base * 2^(n-1).
type Policy struct {
	Base        time.Duration
	MaxAttempts int
}

// FromConfig builds a Policy from the backoff configuration.
func FromConfig(cfg config.BackoffConfig) Policy {
	return Policy{Base: cfg.Base.Duration, MaxAttempts: cfg.MaxAttempts}
}

// Delay returns the wait before retry number attempt (1-based).
// Attempts below 1 wait nothing; results saturate at the largest time.Duration.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.Base <= 0 {
		return 0
	}

	shift := attempt - 1
	if shift >= 63 || p.Base > math.MaxInt64>>shift {
		return time.Duration(math.MaxInt64)
	}

	return p.Base << shift
}

// Exhausted reports whether failures consecutive failures exceed MaxAttempts.
func (p Policy) Exhausted(failures int) bool {
	return failures > p.MaxAttempts
}
