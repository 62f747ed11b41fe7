package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratacast/internal/app/system/backend"
	"go.uber.org/zap"
)

// Reply is a canned backend response.
type Reply struct {
	Status int
	Body   string
	// ContentType defaults to application/json.
	ContentType string
	Delay       time.Duration
}

// FakeBackend serves canned replies keyed by "METHOD path?query", where path
// is relative to /api/. Unknown routes answer 404.
type FakeBackend struct {
	Server *httptest.Server

	mu      sync.Mutex
	replies map[string]Reply
	hits    map[string]int
}

// NewFakeBackend starts a FakeBackend closed on test cleanup.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	f := &FakeBackend{replies: map[string]Reply{}, hits: map[string]int{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// Handle sets the JSON body returned for GET path.
func (f *FakeBackend) Handle(path, body string) {
	f.Set(http.MethodGet, path, Reply{Status: http.StatusOK, Body: body})
}

// Set installs r for method and path.
func (f *FakeBackend) Set(method, path string, r Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[method+" "+strings.TrimPrefix(path, "/")] = r
}

// Hits returns how often method and path were requested.
func (f *FakeBackend) Hits(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[method+" "+strings.TrimPrefix(path, "/")]
}

// Client returns a backend client pointed at the fake.
func (f *FakeBackend) Client(t *testing.T) *backend.Client {
	t.Helper()
	c, err := backend.New(backend.Config{BaseURL: f.Server.URL, Timeout: 5 * time.Second}, zap.NewNop())
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	return c
}

func (f *FakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		w.WriteHeader(http.StatusOK)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/")
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	key := r.Method + " " + path

	f.mu.Lock()
	f.hits[key]++
	reply, ok := f.replies[key]
	f.mu.Unlock()

	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-r.Context().Done():
			return
		}
	}
	ct := reply.ContentType
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(reply.Body))
}
