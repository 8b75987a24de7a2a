package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestRequestIDKeepsOnlyUUIDs(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(zerolog.Nop()))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(requestIDKey)) })

	inbound := uuid.NewString()
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"uuid", inbound, true},
		{"missing", "", false},
		{"injection", "abc\nlevel=error", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(requestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			got := rec.Header().Get(requestIDHeader)
			if got != rec.Body.String() {
				t.Fatalf("header %q and context %q differ", got, rec.Body.String())
			}
			if tt.keep && got != tt.header {
				t.Fatalf("request id = %q, want %q", got, tt.header)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Fatalf("generated id %q is not a uuid", got)
			}
		})
	}
}

func TestRequestLoggerCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	r := gin.New()
	r.Use(RequestID(base), Logger(base))
	r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/things/42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{`"request_id":"`, `"route":"/things/:id"`, `"status":204`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %s lacks %s", line, want)
		}
	}
}

func TestRecoveryAnswersGenericDetail(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(zerolog.Nop()), Recovery(zerolog.Nop()))
	r.GET("/", func(*gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"detail":"internal server error"}` {
		t.Fatalf("body = %s", body)
	}
}

func TestRecoveryLogsThroughRequestLogger(t *testing.T) {
	tests := []struct {
		name      string
		requestID bool
	}{
		{"request scoped", true},
		{"fallback", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			base := zerolog.New(&buf)

			r := gin.New()
			if tt.requestID {
				r.Use(RequestID(base))
			}
			r.Use(Recovery(base))
			r.GET("/", func(*gin.Context) { panic("boom") })
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			line := buf.String()
			if !strings.Contains(line, `"message":"panic recovered"`) {
				t.Fatalf("log %s lacks panic line", line)
			}
			if got := strings.Contains(line, `"request_id":"`); got != tt.requestID {
				t.Fatalf("request_id present = %v, want %v in %s", got, tt.requestID, line)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		wantOrigin string
		wantCreds  string
	}{
		{"listed", []string{"https://app.example"}, "https://app.example", "https://app.example", "true"},
		{"unlisted", []string{"https://app.example"}, "https://evil.example", "", ""},
		{"open", nil, "https://any.example", "*", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(CORS(tt.allowed))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("allow-origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Fatalf("allow-credentials = %q, want %q", got, tt.wantCreds)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://app.example"}))
	r.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/login", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Fatal("Authorization not allowed in preflight")
	}
}
