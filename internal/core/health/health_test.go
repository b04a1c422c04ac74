package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type version struct {
	v   string
	err error
}

func (f version) Version(context.Context) (string, error) { return f.v, f.err }

func TestPing_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/_mgmt/ping", nil)
	rr := httptest.NewRecorder()

	Ping()(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"message":"PONG"}` {
		t.Fatalf("body=%q", got)
	}
}

func TestReadiness_Handler(t *testing.T) {
	cases := []struct {
		name string
		vr   version
		code int
		want string
	}{
		{"up", version{v: "0.9.8"}, http.StatusOK, `"pgstac_version":"0.9.8"`},
		{"down", version{err: errors.New("dial tcp: refused")}, http.StatusServiceUnavailable, "Could not connect to database"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			Readiness(tc.vr)(rr, httptest.NewRequest(http.MethodGet, "/_mgmt/health", nil))
			if rr.Code != tc.code {
				t.Fatalf("status=%d want %d", rr.Code, tc.code)
			}
			body := rr.Body.String()
			if !strings.Contains(body, tc.want) {
				t.Fatalf("body=%s missing %s", body, tc.want)
			}
			if strings.Contains(body, "refused") {
				t.Fatalf("backend error leaked: %s", body)
			}
		})
	}
}
