package types

import "time"

// SessionStatus tracks one browser launch.
type SessionStatus string

const (
	SessionRunning SessionStatus = "running"
	SessionStopped SessionStatus = "stopped"
	SessionFailed  SessionStatus = "failed"
)

// Session records a browser instance bound to a profile.
type Session struct {
	ID        int            `json:"id"`
	ProfileID int            `json:"profileId"`
	ProxyID   *int           `json:"proxyId,omitempty"`
	Status    SessionStatus  `json:"status"`
	StartedAt time.Time      `json:"startedAt"`
	StoppedAt *time.Time     `json:"stoppedAt,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// SessionFilter narrows session listings. Zero fields match everything.
type SessionFilter struct {
	ProfileID int
	Status    SessionStatus
}
