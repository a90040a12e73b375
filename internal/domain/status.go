package domain

// ConnectionStatus describes the push-stream state of the active session.
type ConnectionStatus string

const (
	// StatusDisconnected is the initial state and the state after a clean close.
	StatusDisconnected ConnectionStatus = "disconnected"
	// StatusConnected means the stream was opened and acknowledged.
	StatusConnected ConnectionStatus = "connected"
	// StatusError means the stream failed. A new initialize may recover.
	StatusError ConnectionStatus = "error"
)
