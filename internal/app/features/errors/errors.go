// Package errors renders the error pages and carries the request-scoped error
// logger feature handlers share.
package errors

import (
	"net/http"

	"github.com/dalemusser/stratacast/internal/app/system/network"
	"github.com/dalemusser/stratacast/internal/app/system/viewdata"
	"github.com/dalemusser/stratacast/internal/app/system/visitor"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ErrorLogger logs handler failures with request context.
type ErrorLogger struct {
	logger *zap.Logger
}

// NewErrorLogger creates an ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorLogger{logger: logger}
}

// Log logs err with the request's method, path, client address, request id
// and visitor.
func (e *ErrorLogger) Log(r *http.Request, msg string, err error, fields ...zap.Field) {
	all := append([]zap.Field{
		zap.Error(err),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("client_ip", network.ClientIP(r)),
	}, fields...)
	if id := middleware.GetReqID(r.Context()); id != "" {
		all = append(all, zap.String("request_id", id))
	}
	if v := visitor.ID(r); v != "" {
		all = append(all, zap.String("visitor", v))
	}
	e.logger.Error(msg, all...)
}

type errorVM struct {
	viewdata.BaseVM
	Status  int
	Message string
}

// Handler renders error pages.
type Handler struct{}

// NewHandler creates a Handler.
func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, title, msg string) {
	vm := errorVM{BaseVM: viewdata.New(r, title), Status: status, Message: msg}
	w.WriteHeader(status)
	templates.Render(w, r, "errors/page", vm)
}

// NotFound renders the 404 page.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "Not Found", "There is no dashboard page at this address.")
}

// MethodNotAllowed renders the 405 page.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", "This address does not accept that request.")
}

// InternalError renders the 500 page.
func (h *Handler) InternalError(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusInternalServerError, "Server Error", "Something went wrong while building this page.")
}

// BackendUnavailable renders the 502 page shown when the forecasting
// service cannot be reached.
func (h *Handler) BackendUnavailable(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusBadGateway, "Forecasting Service Unavailable", "The forecasting service did not answer. Try again shortly.")
}
