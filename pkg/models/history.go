package models

import "time"

// HistoryEntry records one capture-and-send attempt
type HistoryEntry struct {
	ID           string    `json:"id"`
	CapturedAt   time.Time `json:"capturedAt"`
	CategoryID   string    `json:"categoryId"`
	CategoryName string    `json:"categoryName"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Status       int       `json:"status"`
	OK           bool      `json:"ok"`
}

// DeliveryFile is the encoded artifact inside a delivery payload
type DeliveryFile struct {
	Base64Data string `json:"base64Data"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	SizeBytes  int    `json:"sizeBytes"`
}

// DeliveryPayload is the JSON body POSTed to a category endpoint for a
// capture or a file upload. Uploads carry no URL.
type DeliveryPayload struct {
	CategoryID string       `json:"categoryId"`
	Context    string       `json:"context"`
	URL        string       `json:"url,omitempty"`
	Title      string       `json:"title"`
	CapturedAt time.Time    `json:"capturedAt"`
	File       DeliveryFile `json:"file"`
}

// MessagePayload is the JSON body of a text-only send
type MessagePayload struct {
	CategoryID string    `json:"categoryId"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	CapturedAt time.Time `json:"capturedAt"`
	Message    string    `json:"message"`
}

// Target names the category endpoint a send goes to
type Target struct {
	CategoryID   string `json:"categoryId,omitempty"`
	CategoryName string `json:"categoryName,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
}

// UploadRequest is the payload for POST /v1/tabs/{id}/uploads
type UploadRequest struct {
	Target
	Context    string `json:"context,omitempty"`
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType,omitempty"`
	Base64Data string `json:"base64Data"`
	SizeBytes  int    `json:"sizeBytes,omitempty"`
}

// MessageRequest is the payload for POST /v1/tabs/{id}/messages
type MessageRequest struct {
	Target
	Message string `json:"message"`
}

// DeliveryResult is what the delivery endpoint answered
type DeliveryResult struct {
	OK           bool   `json:"ok"`
	Status       int    `json:"status"`
	ResponseText string `json:"responseText"`
}
