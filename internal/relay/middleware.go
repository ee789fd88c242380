package relay

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/1ureka/meshcall/internal/util"
)

// requestLogger logs each request through the shared logger once it
// completes. WebSocket requests are logged when the connection ends.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		util.With(
			"request_id", middleware.GetReqID(r.Context()),
			"remote", r.RemoteAddr,
		).Debug("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}
