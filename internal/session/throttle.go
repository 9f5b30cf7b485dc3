package session

import "time"

// unlockThrottle tracks consecutive failed unlocks. Callers hold the session
// lock.
type unlockThrottle struct {
	failedAttempts int
	lockedUntil    time.Time
}

func (t *unlockThrottle) retryAfter(now time.Time) time.Duration {
	if t.lockedUntil.IsZero() || !now.Before(t.lockedUntil) {
		return 0
	}
	return t.lockedUntil.Sub(now)
}

func (t *unlockThrottle) fail(now time.Time) time.Duration {
	t.failedAttempts++
	backoff := failedAttemptBackoff(t.failedAttempts)
	t.lockedUntil = now.Add(backoff)
	return backoff
}

func (t *unlockThrottle) reset() {
	t.failedAttempts = 0
	t.lockedUntil = time.Time{}
}

func failedAttemptBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	// 1s, 2s, 4s... up to 32s max.
	shift := attempt - 1
	if shift > 5 {
		shift = 5
	}
	return time.Second * time.Duration(1<<shift)
}
