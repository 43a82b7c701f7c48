package queue

import "time"

// backoffTable holds the wait before each attempt, indexed by attempt ordinal.
// It is a fixed lookup, not a formula:
//
//	attempt 1 → immediate
//	attempt 2 → 1 min
//	attempt 3 → 5 min
//	attempt 4 → 15 min
//	attempt 5 → 60 min
//	attempt 6+ → 120 min (flat tail, also used when max attempts is raised above 5)
var backoffTable = [...]time.Duration{
	0,
	0,
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	60 * time.Minute,
}

const backoffTail = 120 * time.Minute

// Backoff returns how long to wait before making the given attempt (1-based).
// After a failed attempt the next eligibility is now + Backoff(attemptCount+1).
func Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if attempt < len(backoffTable) {
		return backoffTable[attempt]
	}
	return backoffTail
}

// NextRetryAt computes when an item with attemptCount completed attempts becomes eligible again.
func NextRetryAt(now time.Time, attemptCount int) time.Time {
	return now.Add(Backoff(attemptCount + 1))
}
