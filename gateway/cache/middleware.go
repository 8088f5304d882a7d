package cache

import (
	"bytes"
	"net/http"
)

// bufferedWriter captures a downstream handler's response so it can be
// written back to the cache only when the final status is 200.
type bufferedWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *bufferedWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Middleware serves cache hits directly and writes back any 200 response
// without a Content-Encoding to a cacheable GET request. Non-GET requests and paths with no matching
// policy bypass the cache entirely.
func (c *Cache) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			ttl, cacheable := c.MatchPolicy(r.URL.Path)
			if !cacheable {
				next.ServeHTTP(w, r)
				return
			}

			key := Key(r.Method, r.URL.Path, r.URL.Query())

			if entry, hit := c.Get(r.Context(), key); hit {
				if entry.ContentType != "" {
					w.Header().Set("Content-Type", entry.ContentType)
				}
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(entry.Body)
				return
			}

			bw := &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(bw, r)

			// Encoded (compressed) bodies are not stored: a hit is served
			// without a Content-Encoding header.
			if bw.status == http.StatusOK && bw.Header().Get("Content-Encoding") == "" {
				c.Set(r.Context(), key, Entry{ContentType: bw.Header().Get("Content-Type"), Body: bw.body.Bytes()}, ttl)
			}
		})
	}
}
