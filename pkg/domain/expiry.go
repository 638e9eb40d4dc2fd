package domain

import "time"

// ResolveExpiry maps a retention tier to an absolute instant relative to
// now. Unrecognized tiers, "never" and the empty string all mean the paste
// never expires. Evaluated once, at creation time.
func ResolveExpiry(tier string, now time.Time) *time.Time {
	var d time.Duration
	switch tier {
	case "1h":
		d = time.Hour
	case "24h":
		d = 24 * time.Hour
	case "7d":
		d = 7 * 24 * time.Hour
	case "30d":
		d = 30 * 24 * time.Hour
	default:
		return nil
	}
	t := now.Add(d)
	return &t
}

// IsLive reports whether a paste with the given expiry is visible at now.
// A nil expiry never expires. Pure, no side effects; expiry is enforced
// lazily on read paths, never by a sweeper.
func IsLive(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return expiresAt.After(now)
}
