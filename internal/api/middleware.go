package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shehryarbajwa/pagestitch/internal/ratelimit"
)

// maxBodyPeek bounds how much of a request body is buffered to find the category
const maxBodyPeek = 1 << 20

// RateLimitMiddleware enforces per-category send limits
func RateLimitMiddleware(limiter *ratelimit.Limiter, requestsPerHour int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			categoryID := getCategoryID(r)

			if categoryID == "" {
				next.ServeHTTP(w, r)
				return
			}

			d := limiter.Reserve(categoryID)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(requestsPerHour))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				retry := int(d.RetryAfter / time.Second)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeError(w, http.StatusTooManyRequests,
					fmt.Sprintf("Rate limit exceeded. Maximum %d sends per hour per category, retry in %ds.", requestsPerHour, retry))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getCategoryID looks for the category in the query, a header, then the
// JSON body. The body is put back for the handler.
func getCategoryID(r *http.Request) string {
	if id := r.URL.Query().Get("categoryId"); id != "" {
		return id
	}
	if id := r.Header.Get("X-Category-ID"); id != "" {
		return id
	}
	if r.Body == nil || r.Method != http.MethodPost {
		return ""
	}

	peek, err := io.ReadAll(io.LimitReader(r.Body, maxBodyPeek))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(peek), r.Body), r.Body}
	if err != nil {
		return ""
	}
	return categoryFromJSON(peek)
}

// categoryFromJSON scans top-level keys for categoryId. It stops at the
// first decode error, so a body cut short by the peek still works when the
// key comes early.
func categoryFromJSON(data []byte) string {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return ""
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		if key, _ := tok.(string); key == "categoryId" {
			var id string
			if dec.Decode(&id) != nil {
				return ""
			}
			return id
		}
		var skip json.RawMessage
		if dec.Decode(&skip) != nil {
			return ""
		}
	}
	return ""
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Category-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
