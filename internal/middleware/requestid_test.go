package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// newRequestIDRouter echoes the context request id in X-Context-Request-ID.
func newRequestIDRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.Header("X-Context-Request-ID", RequestID(c))
		c.Status(http.StatusOK)
	})
	return r
}

func doRequestID(r *gin.Engine, inbound string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		req.Header.Set(RequestIDHeader, inbound)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// RequestIDMiddleware
// ---------------------------------------------------------------------------

func TestRequestIDMiddleware_GeneratesUUIDWhenAbsent(t *testing.T) {
	w := doRequestID(newRequestIDRouter(), "")

	id := w.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("generated id %q is not a UUID: %v", id, err)
	}
	if ctxID := w.Header().Get("X-Context-Request-ID"); ctxID != id {
		t.Errorf("context id %q != response id %q", ctxID, id)
	}
}

func TestRequestIDMiddleware_PropagatesWellFormedID(t *testing.T) {
	const upstream = "lb-7f3a.0001:edge"
	w := doRequestID(newRequestIDRouter(), upstream)

	if got := w.Header().Get(RequestIDHeader); got != upstream {
		t.Errorf("response id = %q, want %q", got, upstream)
	}
}

func TestRequestIDMiddleware_ReplacesMalformedID(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
	}{
		{"spaces", "has spaces in it"},
		{"newline injection", "abc\r\nX-Evil: 1"},
		{"too long", strings.Repeat("a", 129)},
		{"json", `{"id":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequestID(newRequestIDRouter(), tt.inbound)
			got := w.Header().Get(RequestIDHeader)
			if got == tt.inbound {
				t.Fatalf("malformed id %q was propagated", tt.inbound)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("replacement id %q is not a UUID", got)
			}
		})
	}
}

func TestRequestIDMiddleware_DifferentIDsPerRequest(t *testing.T) {
	r := newRequestIDRouter()
	seen := make(map[string]struct{}, 10)
	for i := range 10 {
		id := doRequestID(r, "").Header().Get(RequestIDHeader)
		if _, dup := seen[id]; dup {
			t.Errorf("duplicate request id %q on iteration %d", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestRequestID_EmptyWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := RequestID(c); got != "" {
		t.Errorf("RequestID() = %q, want empty", got)
	}
}
