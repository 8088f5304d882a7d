// Package compression implements the gateway's response compression stage:
// negotiate an encoding from Accept-Encoding, buffer the downstream
// response, and compress it when the content type and size make it
// worthwhile.
package compression

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/orderflow/backbone/common/config"
)

var compressibleTypes = []string{
	"application/json",
	"text/",
	"application/xml",
	"application/javascript",
	"application/xhtml+xml",
}

func isCompressible(contentType string) bool {
	ct, _, _ := strings.Cut(contentType, ";")
	ct = strings.TrimSpace(ct)
	for _, prefix := range compressibleTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

// negotiate picks an encoding from the client's Accept-Encoding header,
// preferring br over gzip over the configured default, but only among
// encodings cfg.SupportedEncodings actually enables on the server. A
// configured default outside {br, gzip} is not itself an encoding this
// package can produce, so it falls back to no compression.
func negotiate(acceptEncoding string, cfg config.CompressionSettings) string {
	if acceptEncoding == "" {
		return ""
	}
	accepted := map[string]bool{}
	for _, part := range strings.Split(acceptEncoding, ",") {
		enc, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		accepted[strings.ToLower(strings.TrimSpace(enc))] = true
	}

	enabled := map[string]bool{}
	for _, enc := range cfg.SupportedEncodings {
		enabled[strings.ToLower(strings.TrimSpace(enc))] = true
	}

	if accepted["br"] && enabled["br"] {
		return "br"
	}
	if accepted["gzip"] && enabled["gzip"] {
		return "gzip"
	}
	if accepted[cfg.DefaultEncoding] && enabled[cfg.DefaultEncoding] && (cfg.DefaultEncoding == "br" || cfg.DefaultEncoding == "gzip") {
		return cfg.DefaultEncoding
	}
	return ""
}

func compress(encoding string, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch encoding {
	case "br":
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "gzip":
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return body, nil
	}
	return buf.Bytes(), nil
}

// bufferedWriter captures a downstream handler's response so the
// compression decision can be made once the full body and its content type
// are known.
type bufferedWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *bufferedWriter) WriteHeader(status int) {
	w.status = status
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

// Middleware compresses compressible, large-enough downstream responses
// with the best encoding the client accepts. Requests with no
// Accept-Encoding, non-compressible content types, or bodies at or below
// the configured threshold pass through uncompressed.
func Middleware(cfg config.CompressionSettings) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			bw := &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(bw, r)

			body := bw.body.Bytes()
			contentType := bw.Header().Get("Content-Type")

			encoding := negotiate(r.Header.Get("Accept-Encoding"), cfg)
			if encoding == "" || !isCompressible(contentType) || len(body) <= cfg.CompressionThresholdBytes {
				w.WriteHeader(bw.status)
				_, _ = w.Write(body)
				return
			}

			compressed, err := compress(encoding, body)
			if err != nil {
				w.WriteHeader(bw.status)
				_, _ = w.Write(body)
				return
			}

			w.Header().Set("Content-Encoding", encoding)
			w.Header().Set("Content-Length", strconv.Itoa(len(compressed)))
			w.WriteHeader(bw.status)
			_, _ = w.Write(compressed)
		})
	}
}
