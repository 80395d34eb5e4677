// Package events contains the websocket event contracts pushed to dashboard clients.
package events

import (
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Lifecycle messages
	MessageTypeUploadStatus MessageType = "upload:status"
	MessageTypeReportStatus MessageType = "report:status"

	// Connection messages
	MessageTypeConnect MessageType = "connect"
	MessageTypeError   MessageType = "error"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// WebSocketMessage represents a complete WebSocket message
type WebSocketMessage struct {
	BaseMessage
	Data interface{} `json:"data,omitempty"`
}

// UploadStatusEvent is published on every upload transition
type UploadStatusEvent struct {
	UploadID   string    `json:"uploadId"`
	Filename   string    `json:"filename"`
	Status     string    `json:"status"`
	ErrorCount int       `json:"errorCount"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ReportStatusEvent is published on every report job transition
type ReportStatusEvent struct {
	JobID        string    `json:"jobId"`
	Status       string    `json:"status"`
	DownloadURL  *string   `json:"downloadUrl"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ErrorMessage represents an error message
type ErrorMessage struct {
	BaseMessage
	Data struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"data"`
}
