package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/FairForge/warmstandby/internal/logging"
)

// routeTemplate returns the matched route pattern so metrics stay low
// cardinality.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		reqID := middleware.GetReqID(r.Context())
		if reqID != "" {
			r = r.WithContext(logging.WithRequestID(r.Context(), reqID))
		}

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routeTemplate(r)
		if s.deps.Recorder != nil {
			s.deps.Recorder.IncrementRequest(r.Method, route, status)
			s.deps.Recorder.RecordLatency(r.Method, route, time.Since(start).Seconds())
		}

		logging.FromContext(r.Context(), s.logger).Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := mux.Vars(r)["domain"]
		if !s.limiter.Allow(key) {
			if s.deps.Recorder != nil {
				s.deps.Recorder.IncrementRateLimitHit(routeTemplate(r))
			}
			w.Header().Set("Retry-After", "10")
			writeError(w, http.StatusTooManyRequests, "failover trigger rate exceeded for domain "+key)
			return
		}
		next.ServeHTTP(w, r)
	})
}
