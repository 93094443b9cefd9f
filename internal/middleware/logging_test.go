package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"error"}`))
	}))

	r := httptest.NewRequest("GET", "/postback/adgem?user_id=u1", nil)
	r.Header.Set("CF-Connecting-IP", "203.0.113.5")
	r.Header.Set("User-Agent", "AdGem-Postback/1.0")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	line := buf.String()
	for _, want := range []string{
		"level=WARN",
		"method=GET",
		"path=/postback/adgem",
		"status=401",
		"bytes=18",
		"remote=203.0.113.5",
		"user_agent=AdGem-Postback/1.0",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %q: %s", want, line)
		}
	}
}

func TestRequestLoggerDefaultStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	// Handler that never calls WriteHeader logs as 200.
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	line := buf.String()
	if !strings.Contains(line, "level=INFO") || !strings.Contains(line, "status=200") {
		t.Errorf("log line = %s", line)
	}
}
