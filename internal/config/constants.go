package config

import "time"

// Application constants
const (
	AppName = "petakeu"

	// DefaultStorageBaseURL prefixes upload, error report and report links
	DefaultStorageBaseURL = "https://storage.petakeu.local"

	// Data subdirectories
	UploadsDirName      = "uploads"
	ErrorReportsDirName = "error-reports"

	// WebSocket keepalive
	WebSocketPingPeriod = 54 * time.Second
	WebSocketPongWait   = 60 * time.Second
)
