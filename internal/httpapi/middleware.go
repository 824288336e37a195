package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// withRequestLog tags every request with a correlation ID and logs its
// method, path, status, and duration. Grounded on the teacher's own
// indirect dependency on google/uuid, repurposed here for log correlation
// since the teacher itself never generates request-scoped IDs.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.logger == nil {
			next.ServeHTTP(w, r)
			return
		}
		id := uuid.NewString()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Printf("httpapi: [%s] %s %s -> %d (%s)", id, r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
