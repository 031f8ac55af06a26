package domain

import "time"

// ConnectivityStatus is the last known reachability of the backend
type ConnectivityStatus string

const (
	StatusUnknown ConnectivityStatus = "unknown"
	StatusOnline  ConnectivityStatus = "online"
	StatusOffline ConnectivityStatus = "offline"
)

// ConnectivityState is a snapshot of the connectivity monitor
type ConnectivityState struct {
	Status    ConnectivityStatus
	LastProbe time.Time // start time of the most recent probe
	InFlight  bool
}

// Online reports whether the last completed probe succeeded
func (s ConnectivityState) Online() bool {
	return s.Status == StatusOnline
}

// ProbeOutcome describes a completed health probe
type ProbeOutcome struct {
	Status     ConnectivityStatus
	Duration   time.Duration
	StatusCode int
	Err        error
}
