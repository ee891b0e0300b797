// Package mwcompress negotiates response compression from Accept-Encoding,
// preferring brotli over gzip.
package mwcompress

import (
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

type compressWriter struct {
	http.ResponseWriter
	writer      io.Writer
	encoding    string
	wroteHeader bool
}

func (cw *compressWriter) WriteHeader(status int) {
	if !cw.wroteHeader {
		cw.Header().Del("Content-Length")
		cw.Header().Set("Content-Encoding", cw.encoding)
		cw.wroteHeader = true
	}
	cw.ResponseWriter.WriteHeader(status)
}

func (cw *compressWriter) Write(p []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	return cw.writer.Write(p)
}

// New wraps next with a compressing response writer when the client accepts
// one of the supported encodings.
func New(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accepted := r.Header.Get("Accept-Encoding")
		switch {
		case strings.Contains(accepted, "br"):
			bw := brotli.NewWriter(w)
			defer bw.Close()
			next.ServeHTTP(&compressWriter{ResponseWriter: w, writer: bw, encoding: "br"}, r)
		case strings.Contains(accepted, "gzip"):
			gw := gzip.NewWriter(w)
			defer gw.Close()
			next.ServeHTTP(&compressWriter{ResponseWriter: w, writer: gw, encoding: "gzip"}, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
