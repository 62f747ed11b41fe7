package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/dalemusser/stratacast/internal/app/system/visitor"
)

// TestVisitor is the visitor id used by request helpers.
const TestVisitor = "3f0c1e8a-7d7b-4e52-9a57-1c2d3e4f5a6b"

// NewRequest creates a request carrying TestVisitor and a CSRF token.
func NewRequest(method, target string) *http.Request {
	return NewVisitorRequest(method, target, TestVisitor, nil)
}

// NewFormRequest creates a form POST carrying TestVisitor and a CSRF token.
func NewFormRequest(target string, form url.Values) *http.Request {
	return NewVisitorRequest(http.MethodPost, target, TestVisitor, form)
}

// NewVisitorRequest creates a request for visitor id. A non-nil form is
// encoded as the body.
func NewVisitorRequest(method, target, id string, form url.Values) *http.Request {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return WithCSRFToken(visitor.WithTestVisitor(req, id))
}

// HTMX marks r as an htmx request.
func HTMX(r *http.Request) *http.Request {
	r.Header.Set("HX-Request", "true")
	return r
}

// ResponseRecorder wraps httptest.ResponseRecorder with assertions.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t interface{ Errorf(string, ...any) }, expected int) {
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d (body %q)", r.Code, expected, r.Body.String())
	}
}

// AssertRedirect checks for a redirect to the expected location.
func (r *ResponseRecorder) AssertRedirect(t interface{ Errorf(string, ...any) }, expectedLocation string) {
	if r.Code != http.StatusSeeOther && r.Code != http.StatusFound && r.Code != http.StatusMovedPermanently {
		t.Errorf("expected redirect status, got %d", r.Code)
	}
	if loc := r.Header().Get("Location"); loc != expectedLocation {
		t.Errorf("redirect location: got %q, want %q", loc, expectedLocation)
	}
}

// AssertContains checks that the body contains every expected string.
func (r *ResponseRecorder) AssertContains(t interface{ Errorf(string, ...any) }, expected ...string) {
	body := r.Body.String()
	for _, e := range expected {
		if !strings.Contains(body, e) {
			t.Errorf("response body does not contain %q", e)
		}
	}
}
