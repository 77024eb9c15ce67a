package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shehryarbajwa/pagestitch/internal/browser"
	"github.com/shehryarbajwa/pagestitch/internal/capture"
	"github.com/shehryarbajwa/pagestitch/internal/composite"
	"github.com/shehryarbajwa/pagestitch/internal/executor"
	"github.com/shehryarbajwa/pagestitch/internal/geometry"
	"github.com/shehryarbajwa/pagestitch/internal/ratelimit"
	"github.com/shehryarbajwa/pagestitch/internal/session"
	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

type fakeTabs struct {
	tabs map[string]models.Tab
}

func (f *fakeTabs) Open(_ context.Context, req models.OpenTabRequest) (models.Tab, error) {
	tab := models.Tab{ID: fmt.Sprintf("tab-%d", len(f.tabs)+1), URL: req.URL, Title: "Opened"}
	f.tabs[tab.ID] = tab
	return tab, nil
}

func (f *fakeTabs) Get(id string) (models.Tab, error) {
	tab, ok := f.tabs[id]
	if !ok {
		return models.Tab{}, browser.ErrTabNotFound
	}
	return tab, nil
}

func (f *fakeTabs) List() []models.Tab {
	var list []models.Tab
	for _, t := range f.tabs {
		list = append(list, t)
	}
	return list
}

func (f *fakeTabs) Close(id string) error {
	if _, ok := f.tabs[id]; !ok {
		return browser.ErrTabNotFound
	}
	delete(f.tabs, id)
	return nil
}

type fakeCapturer struct {
	err         error
	last        models.CaptureRequest
	lastUpload  models.UploadRequest
	lastMessage models.MessageRequest
}

func (f *fakeCapturer) sent(tabID string) (capture.Result, error) {
	if f.err != nil {
		return capture.Result{}, f.err
	}
	return capture.Result{
		Tab:      models.Tab{ID: tabID},
		Delivery: &models.DeliveryResult{OK: true, Status: 200, ResponseText: "ok"},
	}, nil
}

func (f *fakeCapturer) Upload(_ context.Context, tabID string, req models.UploadRequest) (capture.Result, error) {
	f.lastUpload = req
	return f.sent(tabID)
}

func (f *fakeCapturer) SendMessage(_ context.Context, tabID string, req models.MessageRequest) (capture.Result, error) {
	f.lastMessage = req
	return f.sent(tabID)
}

func (f *fakeCapturer) Capture(_ context.Context, tabID string, req models.CaptureRequest) (capture.Result, error) {
	f.last = req
	if f.err != nil {
		return capture.Result{}, f.err
	}
	return capture.Result{Image: "QUJD", Mode: models.ModeFullPage, Tab: models.Tab{ID: tabID}, SizeBytes: 3}, nil
}

type noSessions struct{}

func (noSessions) Lookup(string) (*session.Session, bool) { return nil, false }
func (noSessions) List() []models.Capture               { return []models.Capture{} }

type fakeHistory []models.HistoryEntry

func (f fakeHistory) List() []models.HistoryEntry { return f }

type fakeProgress struct{}

func (fakeProgress) ServeTab(w http.ResponseWriter, _ *http.Request, tabID string) {
	w.Write([]byte(tabID))
}

func newTestRouter(capturer *fakeCapturer, perHour, burst int) (http.Handler, *fakeTabs) {
	tabs := &fakeTabs{tabs: map[string]models.Tab{"tab-1": {ID: "tab-1", URL: "https://example.com"}}}
	h := NewHandler(tabs, capturer, noSessions{}, fakeHistory{{ID: "h1", Status: 200, OK: true}}, fakeProgress{})
	return h.SetupRoutes(ratelimit.NewLimiter(perHour, burst), perHour), tabs
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTabLifecycle(t *testing.T) {
	router, tabs := newTestRouter(&fakeCapturer{}, 100, 10)

	rec := do(t, router, "POST", "/v1/tabs", `{"url":"https://example.org"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open = %d %s", rec.Code, rec.Body)
	}
	var tab models.Tab
	json.NewDecoder(rec.Body).Decode(&tab)
	if tab.URL != "https://example.org" {
		t.Errorf("tab = %+v", tab)
	}

	if rec := do(t, router, "POST", "/v1/tabs", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("open without url = %d", rec.Code)
	}
	if rec := do(t, router, "GET", "/v1/tabs/"+tab.ID, ""); rec.Code != http.StatusOK {
		t.Errorf("get = %d", rec.Code)
	}
	if rec := do(t, router, "DELETE", "/v1/tabs/"+tab.ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("close = %d", rec.Code)
	}
	if _, ok := tabs.tabs[tab.ID]; ok {
		t.Error("tab not closed")
	}
	if rec := do(t, router, "DELETE", "/v1/tabs/"+tab.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("close twice = %d", rec.Code)
	}
}

func TestCreateCapture(t *testing.T) {
	capturer := &fakeCapturer{}
	router, _ := newTestRouter(capturer, 100, 10)

	rec := do(t, router, "POST", "/v1/tabs/tab-1/captures", `{"mode":"full-page","categoryId":"bugs"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("capture = %d %s", rec.Code, rec.Body)
	}
	var body struct {
		OK    bool   `json:"ok"`
		Image string `json:"image"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if !body.OK || body.Image != "QUJD" {
		t.Errorf("body = %+v", body)
	}
	if capturer.last.Mode != models.ModeFullPage || capturer.last.CategoryID != "bugs" {
		t.Errorf("request = %+v", capturer.last)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "100" {
		t.Errorf("rate limit headers missing")
	}

	if rec := do(t, router, "POST", "/v1/tabs/missing/captures", `{}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown tab = %d", rec.Code)
	}
	if rec := do(t, router, "POST", "/v1/tabs/tab-1/captures", `{"mode":"thumbnail"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad mode = %d", rec.Code)
	}
}

func TestCreateCaptureErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrSessionActive, http.StatusConflict},
		{executor.ErrCaptureInProgress, http.StatusConflict},
		{fmt.Errorf("draw: %w", composite.ErrTooLarge), http.StatusRequestEntityTooLarge},
		{geometry.ErrNoTarget, http.StatusUnprocessableEntity},
		{session.ErrTimeout, http.StatusGatewayTimeout},
		{fmt.Errorf("%w: rate limited", session.ErrSnapshot), http.StatusBadGateway},
		{executor.ErrSequence, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		router, _ := newTestRouter(&fakeCapturer{err: tt.err}, 100, 10)
		rec := do(t, router, "POST", "/v1/tabs/tab-1/captures", `{"mode":"full-page"}`)
		if rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
			continue
		}
		var resp models.Response
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.OK || resp.Error != tt.err.Error() {
			t.Errorf("%v: body = %+v", tt.err, resp)
		}
	}
}

func TestCaptureRateLimitPerCategory(t *testing.T) {
	router, _ := newTestRouter(&fakeCapturer{}, 1, 2)

	for i := 0; i < 2; i++ {
		if rec := do(t, router, "POST", "/v1/tabs/tab-1/captures", `{"categoryId":"bugs"}`); rec.Code != http.StatusOK {
			t.Fatalf("capture %d = %d", i, rec.Code)
		}
	}
	rec := do(t, router, "POST", "/v1/tabs/tab-1/captures", `{"categoryId":"bugs"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third capture = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("429 headers = %v", rec.Header())
	}
	if rec := do(t, router, "POST", "/v1/tabs/tab-1/captures", `{"categoryId":"ux"}`); rec.Code != http.StatusOK {
		t.Fatalf("other category = %d", rec.Code)
	}
	if rec := do(t, router, "POST", "/v1/tabs/tab-1/captures", ``); rec.Code != http.StatusOK {
		t.Fatalf("no category = %d", rec.Code)
	}
}

func TestHistoryAndCaptures(t *testing.T) {
	router, _ := newTestRouter(&fakeCapturer{}, 100, 10)

	rec := do(t, router, "GET", "/v1/history", "")
	var entries []models.HistoryEntry
	json.NewDecoder(rec.Body).Decode(&entries)
	if rec.Code != http.StatusOK || len(entries) != 1 || entries[0].ID != "h1" {
		t.Errorf("history = %d %+v", rec.Code, entries)
	}

	if rec := do(t, router, "GET", "/v1/tabs/tab-1/capture", ""); rec.Code != http.StatusNotFound {
		t.Errorf("capture without session = %d", rec.Code)
	}
	if rec := do(t, router, "GET", "/v1/captures", ""); rec.Code != http.StatusOK {
		t.Errorf("captures = %d", rec.Code)
	}
	if rec := do(t, router, "GET", "/v1/tabs/tab-1/progress", ""); rec.Body.String() != "tab-1" {
		t.Errorf("progress routed to %q", rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(&fakeCapturer{}, 100, 10)
	rec := do(t, router, "OPTIONS", "/v1/tabs/tab-1/captures", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}
}

func TestUploadAndMessageRoutes(t *testing.T) {
	capturer := &fakeCapturer{}
	router, _ := newTestRouter(capturer, 100, 10)

	rec := do(t, router, "POST", "/v1/tabs/tab-1/uploads",
		`{"categoryId":"docs","endpoint":"https://hooks.example.com","fileName":"a.txt","base64Data":"QQ=="}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload = %d %s", rec.Code, rec.Body)
	}
	var body struct {
		OK     bool                  `json:"ok"`
		Result models.DeliveryResult `json:"result"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if !body.OK || body.Result.Status != 200 {
		t.Errorf("upload body = %+v", body)
	}
	if capturer.lastUpload.CategoryID != "docs" || capturer.lastUpload.FileName != "a.txt" || capturer.lastUpload.Endpoint == "" {
		t.Errorf("upload request = %+v", capturer.lastUpload)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "100" {
		t.Error("uploads are not rate limited")
	}

	rec = do(t, router, "POST", "/v1/tabs/tab-1/messages", `{"categoryId":"bugs","endpoint":"https://hooks.example.com","message":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("message = %d %s", rec.Code, rec.Body)
	}
	if capturer.lastMessage.Message != "hi" || capturer.lastMessage.CategoryID != "bugs" {
		t.Errorf("message request = %+v", capturer.lastMessage)
	}

	if rec := do(t, router, "POST", "/v1/tabs/missing/messages", `{"message":"hi"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown tab = %d", rec.Code)
	}
	if rec := do(t, router, "POST", "/v1/tabs/tab-1/uploads", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body = %d", rec.Code)
	}

	invalid := &fakeCapturer{err: fmt.Errorf("%w: message is required", capture.ErrInvalidRequest)}
	router, _ = newTestRouter(invalid, 100, 10)
	if rec := do(t, router, "POST", "/v1/tabs/tab-1/messages", `{"message":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid message = %d, want 400", rec.Code)
	}
}

func TestLargeBodyReachesHandlerIntact(t *testing.T) {
	capturer := &fakeCapturer{}
	router, _ := newTestRouter(capturer, 100, 10)

	data := strings.Repeat("QUJD", (maxBodyPeek/4)+1024)
	rec := do(t, router, "POST", "/v1/tabs/tab-1/uploads",
		`{"categoryId":"docs","endpoint":"https://hooks.example.com","fileName":"big.bin","base64Data":"`+data+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload = %d %s", rec.Code, rec.Body)
	}
	if len(capturer.lastUpload.Base64Data) != len(data) {
		t.Errorf("handler saw %d bytes of base64, want %d", len(capturer.lastUpload.Base64Data), len(data))
	}
	if rec.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("category not found in an oversized body")
	}
}

func TestCategoryFromJSON(t *testing.T) {
	tests := map[string]string{
		`{"categoryId":"bugs"}`:                           "bugs",
		`{"mode":"full-page","nested":{"categoryId":"x"}}`: "",
		`{"file":{"a":[1,2]},"categoryId":"docs","x":1}`:  "docs",
		`{"categoryId":"early","base64Data":"QUJDRE`:      "early",
		`[1,2]`: "",
		``:      "",
	}
	for in, want := range tests {
		if got := categoryFromJSON([]byte(in)); got != want {
			t.Errorf("categoryFromJSON(%q) = %q, want %q", in, got, want)
		}
	}
}
