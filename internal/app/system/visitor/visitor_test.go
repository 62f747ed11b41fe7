package visitor

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func echoID() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ID(r)))
	})
}

func TestIdentify_IssuesAndKeepsID(t *testing.T) {
	m, err := NewManager("0123456789abcdef0123456789abcdef", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	h := m.Identify(echoID())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/overview", nil))
	first := rec.Body.String()
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("issued id %q is not a uuid", first)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "stratacast-visitor" || !cookies[0].HttpOnly {
		t.Fatalf("cookies = %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/overview", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Body.String() != first {
		t.Errorf("second request id = %q, want %q", rec.Body.String(), first)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("known visitor got a new cookie")
	}
}

func TestIdentify_TamperedCookie(t *testing.T) {
	m, err := NewManager("", "sc", time.Hour, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sc", Value: "garbage"})
	rec := httptest.NewRecorder()
	m.Identify(echoID()).ServeHTTP(rec, req)

	if _, err := uuid.Parse(rec.Body.String()); err != nil {
		t.Errorf("tampered cookie did not yield a fresh id: %q", rec.Body.String())
	}
}

func TestNewManager_Validation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		secure  bool
		wantErr bool
	}{
		{"dev random key", "", false, false},
		{"dev weak key", "short", false, false},
		{"secure without key", "", true, true},
		{"secure weak key", "short", true, true},
		{"secure strong key", "0123456789abcdef0123456789abcdef", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.key, "", time.Hour, tt.secure, zap.NewNop())
			if (err != nil) != tt.wantErr {
				t.Errorf("NewManager() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithTestVisitor(t *testing.T) {
	r := WithTestVisitor(httptest.NewRequest(http.MethodGet, "/", nil), "abc")
	if ID(r) != "abc" {
		t.Errorf("ID() = %q", ID(r))
	}
	if _, ok := FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()); ok {
		t.Error("FromContext() found an id on a bare request")
	}
}
