package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"officeradar/pkg/logging"
)

// requestLogger writes one line per request to the request log.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if logging.RequestLogger != nil {
			logging.RequestLogger.Info("Request processed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start))
		}
	})
}

// optionsNoContent answers every OPTIONS request with 204. The CORS
// middleware ahead of it has already attached the relevant headers.
func optionsNoContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminOnly guards admin routes with a bearer token. An empty configured
// token keeps every admin route locked.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		auth := r.Header.Get("Authorization")
		if s.cfg.Admin.Token == "" || !strings.HasPrefix(auth, prefix) {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !tokenEqual(auth[len(prefix):], s.cfg.Admin.Token) {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tokenEqual compares tokens in constant time. Hashing first gives the
// comparison equal-length inputs.
func tokenEqual(got, want string) bool {
	g := sha256.Sum256([]byte(got))
	h := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], h[:]) == 1
}
