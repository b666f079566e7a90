package models

import "time"

// Heartbeat represents the periodic status of the position source.
type Heartbeat struct {
	Source    string             `json:"source"`
	Timestamp time.Time          `json:"timestamp"`
	Status    string             `json:"status"`
	Error     string             `json:"error,omitempty"`
	LastFix   *time.Time         `json:"last_fix,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}
