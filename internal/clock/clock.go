// Package clock supplies "now" as milliseconds since the Unix epoch. In test
// mode a request may pin the value through the X-Test-Now-Ms header.
package clock

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// OverrideHeader carries a millisecond timestamp that replaces wall-clock
// time for one request when test mode is on.
const OverrideHeader = "X-Test-Now-Ms"

// Clock resolves the time used for expiry decisions.
type Clock struct {
	testMode bool
	wall     func() time.Time
}

// New returns a Clock. Overrides are ignored unless testMode is true.
func New(testMode bool) *Clock {
	return &Clock{testMode: testMode, wall: time.Now}
}

// TestMode reports whether request overrides are honoured.
func (c *Clock) TestMode() bool {
	return c != nil && c.testMode
}

// Now returns wall-clock time in milliseconds.
func (c *Clock) Now() int64 {
	if c == nil || c.wall == nil {
		return time.Now().UnixMilli()
	}
	return c.wall().UnixMilli()
}

// ForRequest returns the override carried by r when test mode is on and the
// header parses as an integer, and wall-clock time otherwise.
func (c *Clock) ForRequest(r *http.Request) int64 {
	if c.TestMode() && r != nil {
		if v, ok := Parse(r.Header.Get(OverrideHeader)); ok {
			return v
		}
	}
	return c.Now()
}

// Parse reads an override header value.
func Parse(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
