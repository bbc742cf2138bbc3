package httpserver

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// allowedCORSHeaders is the explicit request-header allowlist spec §6
// enumerates, rather than a blanket "*".
const allowedCORSHeaders = "Content-Type, Authorization, X-Amz-Content-Sha256, X-Amz-Date, " +
	"X-Amz-Security-Token, X-Amz-User-Agent, X-Amz-Target, X-Amz-Version, X-Amz-Authorization"

// corsMiddleware answers preflight and annotates every response, matching
// the browser-facing posture spec §4.16 / §6 describe: echo the request
// Origin rather than "*" (required alongside credentialed requests),
// advertise a 24h preflight cache, and allow credentials.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, DELETE, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", allowedCORSHeaders)
		w.Header().Set("Access-Control-Expose-Headers", "ETag, x-amz-request-id, x-amz-meta-*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs one structured line per request in the
// teacher's logrus idiom.
func loggingMiddleware(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"host":     r.Host,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			}).Info("httpserver: request")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
