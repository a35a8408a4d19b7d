package realtime

import (
	"time"

	"golang.org/x/time/rate"
)

const (
	// Feed clients only send a hello and control frames.
	maxFrameBytes = 4 << 10

	defaultSendQueue = 256
	minSendQueue     = 32

	defaultWriteTimeout = 5 * time.Second
	defaultHelloTimeout = 10 * time.Second
	closeGrace          = time.Second

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
	maxPingFailures   = 3

	// Inbound frames per window before the session is closed.
	rateLimitEvents = 20
	rateLimitWindow = 10 * time.Second
)

// newFrameLimiter allows events inbound frames per window, refilling evenly
// across the window, with a burst of events.
func newFrameLimiter(events int, window time.Duration) *rate.Limiter {
	if events <= 0 {
		events = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(events)), events)
}
