// ABOUTME: Adapts an HTTP client's timeout hints into a wake-up deadline for the reactor loop
// ABOUTME: Go's net/http gives each transfer its own goroutine, so there are no fds to watch here
package reactor

import "time"

// minPollInterval is the floor below which a positive suggested
// timeout is clamped, to avoid busy-looping (§4.4 point 3).
const minPollInterval = 10 * time.Millisecond

// clampPollInterval mirrors the socket bridge's timeout-reconciliation
// rule: a positive value under 10ms is raised to 10ms; a non-positive
// value means "no timeout" (the bridge falls back to fallback).
//
// In the original design this fed libcurl's multi_timeout hint, driving
// select()'s timeout alongside a watched fd set. net/http gives each
// transfer its own goroutine and its own blocking Read, so there is no
// fd set for this reactor to multiplex. The goroutine scheduler (Go's
// netpoller) already does that multiplexing beneath us. What remains of
// the socket bridge is this clamp, applied to the reactor's periodic
// housekeeping tick (stats logging) so that tick
// can't be configured into a busy loop either.
func clampPollInterval(suggested, fallback time.Duration) time.Duration {
	if suggested <= 0 {
		return fallback
	}
	if suggested < minPollInterval {
		return minPollInterval
	}
	return suggested
}
