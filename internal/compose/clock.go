package compose

import "time"

// now is replaced in tests that need fixed timestamps.
var now = func() time.Time {
	return time.Now().UTC()
}
