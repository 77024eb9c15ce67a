package models

// MessageType names a cross-context message
type MessageType string

const (
	// StartCapture asks the page context to run the plan/scroll/composite sequence.
	StartCapture MessageType = "START_CAPTURE"
	// CaptureSlice asks the session owner to snapshot and composite one tile.
	CaptureSlice MessageType = "CAPTURE_SLICE"
	// CaptureDone asks the session owner to encode the finished composite.
	CaptureDone MessageType = "CAPTURE_DONE"
)

// Message is the only thing that crosses the context boundary.
type Message struct {
	Type  MessageType `json:"type"`
	TabID string      `json:"tabId"`
	Data  *SliceData  `json:"data,omitempty"`
}

// Response answers every Message.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// OK returns a successful response
func OK() Response {
	return Response{OK: true}
}

// Fail returns a failed response carrying err's message
func Fail(err error) Response {
	if err == nil {
		return Response{OK: false, Error: "Capture failed."}
	}
	return Response{OK: false, Error: err.Error()}
}

// ClipRect is the on-screen bounds of an element-scoped capture target, in
// CSS pixels relative to the viewport.
type ClipRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SliceData is the per-tile metadata carried by CAPTURE_SLICE.
type SliceData struct {
	X             int       `json:"x"`
	Y             int       `json:"y"`
	Complete      float64   `json:"complete"`
	ViewportWidth int       `json:"windowWidth"`
	TotalWidth    int       `json:"totalWidth"`
	TotalHeight   int       `json:"totalHeight"`
	UseWindow     bool      `json:"useWindow"`
	Clip          *ClipRect `json:"clipRect,omitempty"`
	HeaderHeight  int       `json:"headerHeight"`
}
