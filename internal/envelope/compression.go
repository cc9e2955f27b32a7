package envelope

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
)

const (
	minCompressBytes = 2 * 1024
	maxCompressBytes = 5 * 1024 * 1024
)

// alreadyCompressedTypes skips double-compressing content whose
// content-type already implies compression.
var alreadyCompressedTypes = []string{
	"image/", "video/", "audio/", "application/zip", "application/gzip",
	"application/x-brotli", "font/",
}

// compression is stage 4: selects br > gzip > identity on the response
// based on Accept-Encoding, skipping bodies under 2 KiB, over 5 MiB, or
// whose content-type is already compressed.
func compression(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := &bufferingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(buf, r)
		flushCompressed(w, r, buf)
	})
}

// bufferingWriter captures the full response body so its size and
// content-type are known before a compression decision is made.
type bufferingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (b *bufferingWriter) WriteHeader(status int) {
	b.status = status
	b.wroteHeader = true
}

func (b *bufferingWriter) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.wroteHeader = true
	}
	return b.body.Write(p)
}

func flushCompressed(w http.ResponseWriter, r *http.Request, buf *bufferingWriter) {
	body := buf.body.Bytes()
	contentType := buf.Header().Get("Content-Type")

	encoding := ""
	if shouldCompress(len(body), contentType) {
		encoding = negotiateEncoding(r.Header.Get("Accept-Encoding"))
	}

	switch encoding {
	case "br":
		var out bytes.Buffer
		bw := brotli.NewWriter(&out)
		_, _ = bw.Write(body)
		_ = bw.Close()
		w.Header().Set("Content-Encoding", "br")
		w.Header().Set("Content-Length", strconv.Itoa(out.Len()))
		w.WriteHeader(buf.status)
		_, _ = w.Write(out.Bytes())
	case "gzip":
		var out bytes.Buffer
		gw := gzip.NewWriter(&out)
		_, _ = gw.Write(body)
		_ = gw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Length", strconv.Itoa(out.Len()))
		w.WriteHeader(buf.status)
		_, _ = w.Write(out.Bytes())
	default:
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(buf.status)
		_, _ = w.Write(body)
	}
}

func shouldCompress(size int, contentType string) bool {
	if size < minCompressBytes || size > maxCompressBytes {
		return false
	}
	for _, prefix := range alreadyCompressedTypes {
		if strings.HasPrefix(contentType, prefix) {
			return false
		}
	}
	return true
}

// negotiateEncoding picks br over gzip over identity, matching whichever
// the client advertises support for.
func negotiateEncoding(acceptEncoding string) string {
	accepted := strings.ToLower(acceptEncoding)
	if strings.Contains(accepted, "br") {
		return "br"
	}
	if strings.Contains(accepted, "gzip") {
		return "gzip"
	}
	return ""
}
