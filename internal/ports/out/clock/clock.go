package clock

import "time"

// Clock provides time to the application.
// Token expiry and rate-limit windows read time through it so tests can control both.
type Clock interface {
	Now() time.Time
}
