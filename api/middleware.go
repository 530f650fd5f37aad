package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/logger"
	"github.com/absentify/allowance-engine/tenant"
)

type contextKey string

const callerKey contextKey = "caller"

// Headers set by the gateway in front of the engine.
const (
	HeaderWorkspaceID = "X-Workspace-ID"
	HeaderMemberID    = "X-Member-ID"
)

// RequestLogger logs one line per request with the chi request id.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			event := log.Info()
			if status >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("member_id", r.Header.Get(HeaderMemberID)).
				Msg("HTTP request")
		})
	}
}

// Recoverer turns a panic into a logged 500.
func Recoverer(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error().
						Interface("panic", rec).
						Str("request_id", middleware.GetReqID(r.Context())).
						Str("path", r.URL.Path).
						Msg("panic recovered")
					writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CallerMiddleware resolves the acting member from the gateway headers.
// Unknown or missing members are rejected with 403.
func (h *Handler) CallerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws := r.Header.Get(HeaderWorkspaceID)
		member := r.Header.Get(HeaderMemberID)
		if ws == "" || member == "" {
			h.fail(w, r, generic.Unauthorized("missing "+HeaderWorkspaceID+" or "+HeaderMemberID))
			return
		}
		caller, err := h.workspaces.Caller(r.Context(), generic.WorkspaceID(ws), generic.MemberID(member))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, caller)))
	})
}

func callerFrom(ctx context.Context) tenant.Caller {
	c, _ := ctx.Value(callerKey).(tenant.Caller)
	return c
}
