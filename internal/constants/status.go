package constants

// Source statuses reported by the heartbeat service
const (
	// StatusAlive indicates that the agent runs but position updates are stopped
	StatusAlive = "alive"
	// StatusTracking indicates that position updates are running
	StatusTracking = "tracking"
	// StatusError indicates that the source reported an error
	StatusError = "error"
)

// Service names used by the service registry
const (
	LocationServiceName  = "location"
	HeartbeatServiceName = "heartbeat"
	BridgeServiceName    = "bridge"
)
