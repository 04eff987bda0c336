package auth

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func clientIp(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); len(ip) > 0 {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); len(ip) > 0 {
		return ip
	}
	if len(r.RemoteAddr) > 0 {
		return r.RemoteAddr
	}
	return "Unknown"
}

func protocol(r *http.Request) string {
	protocol := r.Header.Get("X-Forwarded-Proto")
	if len(protocol) > 0 {
		return protocol
	}
	return r.URL.Scheme
}

func pathParams(r *http.Request) []interface{} {
	params := make([]interface{}, 0)

	ctx := r.Context()
	if ctx == nil {
		return params
	}

	rctx := chi.RouteContext(ctx)
	for i := range rctx.URLParams.Keys {
		if rctx.URLParams.Keys[i] != "*" {
			params = append(params, slog.String(rctx.URLParams.Keys[i], rctx.URLParams.Values[i]))
		}
	}

	return params
}

func queryParams(r *http.Request) []interface{} {
	params := make([]interface{}, 0)
	for k, v := range r.URL.Query() {
		params = append(params, slog.String(k, strings.Join(v, ";")))
	}
	return params
}

// AuditLogger records every authenticated request as a json line with the
// calling profile, client address, route parameters, and response outcome.
// Entries are written after the handler runs so the status code and duration
// are included.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(stream io.Writer) AuditLogger {
	logger := slog.New(slog.NewJSONHandler(stream, nil))
	return AuditLogger{logger: logger}
}

func (log *AuditLogger) Middleware(next http.Handler) http.Handler {
	handler := func(w http.ResponseWriter, r *http.Request) {
		user, err := UserFromContext(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		log.logger.Info("",
			"username", user.Username,
			"user_id", user.Id,
			"client_ip", clientIp(r),
			"protocol", protocol(r),
			"method", r.Method,
			"url", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			slog.Group("path_params", pathParams(r)...),
			slog.Group("query_params", queryParams(r)...),
		)
	}
	return http.HandlerFunc(handler)
}
