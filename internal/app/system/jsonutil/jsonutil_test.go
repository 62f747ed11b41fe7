package jsonutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusTeapot, map[string]int{"generation": 3})

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q", cc)
	}
	var got map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got["generation"] != 3 {
		t.Errorf("body = %s (%v)", rec.Body.String(), err)
	}
}

func TestJSON_NilBody(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusOK, nil)
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestRaw(t *testing.T) {
	rec := httptest.NewRecorder()
	Raw(rec, http.StatusOK, json.RawMessage(`{"a":1}`))
	if rec.Body.String() != `{"a":1}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		want   Problem
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "unknown view") }, http.StatusBadRequest, Problem{Error: "unknown view"}},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "no such page") }, http.StatusNotFound, Problem{Error: "no such page"}},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "already running") }, http.StatusConflict, Problem{Error: "already running"}},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "backend unavailable") }, http.StatusInternalServerError, Problem{Error: "backend unavailable"}},
		{"field", func(w http.ResponseWriter) { FieldError(w, http.StatusBadRequest, "window", "field is locked") }, http.StatusBadRequest, Problem{Error: "field is locked", Field: "window"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var got Problem
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("body = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAccepted(t *testing.T) {
	rec := httptest.NewRecorder()
	Accepted(rec, map[string]string{"actionId": "x"})
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d", rec.Code)
	}
}
