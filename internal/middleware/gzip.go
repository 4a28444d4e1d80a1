package middleware

import (
	"compress/gzip"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// DecompressBodyReader transparently unpacks gzip encoded request bodies.
func DecompressBodyReader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		if !strings.Contains(req.Header.Get("Content-Encoding"), "gzip") {
			next.ServeHTTP(resp, req)
			return
		}

		reader, err := gzip.NewReader(req.Body)
		if err != nil {
			zap.L().Info("cannot read gzip request body", zap.Error(err))

			resp.WriteHeader(http.StatusBadRequest)
			return
		}

		defer reader.Close()

		req.Body = reader
		req.Header.Del("Content-Encoding")

		next.ServeHTTP(resp, req)
	})
}
