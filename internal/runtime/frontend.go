package runtime

import "time"

// Heartbeat marks the frontend as active. While heartbeats keep arriving within
// the liveness window, device commands are suppressed.
func (e *Engine) Heartbeat() {
	now := e.now()

	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if !e.frontendLiveLocked(now) {
		e.logger.Info("Frontend active, suppressing device commands")
	}
	e.frontendActive = true
	e.frontendLastSeen = now
}

// ReleaseFrontend hands actuation back to the runtime immediately.
func (e *Engine) ReleaseFrontend() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.frontendActive {
		e.logger.Info("Frontend released, resuming device commands")
	}
	e.frontendActive = false
}

// ShouldSkipDeviceCommands reports whether a live frontend currently holds the
// devices. The hold expires on its own after the liveness window.
func (e *Engine) ShouldSkipDeviceCommands() bool {
	now := e.now()
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.frontendLiveLocked(now)
}

func (e *Engine) frontendLiveLocked(now time.Time) bool {
	return e.frontendActive && now.Sub(e.frontendLastSeen) <= e.frontendTimeout
}
