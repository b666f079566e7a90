package models

import (
	"time"
)

// Location is the message published for every position update. Optional values are omitted when
// the source did not provide them.
type Location struct {
	Source             string    `json:"source"`
	Timestamp          time.Time `json:"timestamp"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           *float64  `json:"altitude,omitempty"`
	HorizontalAccuracy *float64  `json:"horizontal_accuracy,omitempty"`
	VerticalAccuracy   *float64  `json:"vertical_accuracy,omitempty"`
	GroundSpeed        *float64  `json:"ground_speed,omitempty"`
	Direction          *float64  `json:"direction,omitempty"`
}
