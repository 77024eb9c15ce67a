package models

import "time"

// SessionStatus represents the current state of a capture session
type SessionStatus string

const (
	StatusRunning   SessionStatus = "RUNNING"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusError     SessionStatus = "ERROR"
	StatusTimedOut  SessionStatus = "TIMED_OUT"
)

// Capture is the public view of a capture session. The composite surface
// itself is never exposed.
type Capture struct {
	ID        string        `json:"id"`
	TabID     string        `json:"tabId"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"startedAt"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Slices    int           `json:"slices"`
	Progress  float64       `json:"progress"`
	Error     string        `json:"error,omitempty"`
}

// CaptureMode selects between a single viewport snapshot and a stitched page
type CaptureMode string

const (
	ModeVisibleArea CaptureMode = "visible-area"
	ModeFullPage    CaptureMode = "full-page"
)

// CaptureRequest is the payload for POST /v1/tabs/{id}/captures
type CaptureRequest struct {
	Mode         CaptureMode `json:"mode,omitempty"`
	CategoryID   string      `json:"categoryId,omitempty"`
	CategoryName string      `json:"categoryName,omitempty"`
	Endpoint     string      `json:"endpoint,omitempty"`
	APIKey       string      `json:"apiKey,omitempty"`
	Context      string      `json:"context,omitempty"`
}

// Target returns the delivery target named by the request
func (r CaptureRequest) Target() Target {
	return Target{CategoryID: r.CategoryID, CategoryName: r.CategoryName, Endpoint: r.Endpoint, APIKey: r.APIKey}
}

// Tab describes an open capture target
type Tab struct {
	ID     string    `json:"id"`
	URL    string    `json:"url"`
	Title  string    `json:"title"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Opened time.Time `json:"openedAt"`
}

// OpenTabRequest is the payload for POST /v1/tabs
type OpenTabRequest struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}
