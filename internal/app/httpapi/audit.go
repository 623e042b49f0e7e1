package httpapi

import (
	"bufio"
	"fmt"
	"net"
	"net/http"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/audit"
	auditsvc "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/services/audit"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/middleware"
)

// newAuditMiddleware records every mutating request after it completes.
// Recording is best-effort and never affects the response.
func newAuditMiddleware(recorder *auditsvc.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				next.ServeHTTP(w, r)
				return
			}

			rec := &auditResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			recorder.Record(r.Context(), audit.Event{
				Actor:      middleware.GetUsername(r.Context()),
				Role:       string(middleware.GetUserRole(r.Context())),
				Action:     r.Method,
				Resource:   r.URL.Path,
				Status:     rec.status,
				RemoteAddr: r.RemoteAddr,
				UserAgent:  r.UserAgent(),
			})
		})
	}
}

// recordSecurityEvent captures auth failures that the audit middleware
// cannot attribute to a user.
func (h *handler) recordSecurityEvent(r *http.Request, action, actor string) {
	h.app.Audit.Record(r.Context(), audit.Event{
		Actor:      actor,
		Action:     action,
		Resource:   r.URL.Path,
		Status:     http.StatusUnauthorized,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
}

type auditResponseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *auditResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *auditResponseWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

func (w *auditResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}
