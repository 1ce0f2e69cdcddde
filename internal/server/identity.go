package server

import "net/http"

// identityHeaders are response headers that advertise the serving software.
var identityHeaders = []string{"Server", "X-Powered-By"}

// StripIdentityMiddleware removes server-identifying response headers just
// before the response is committed, regardless of which stage set them.
func StripIdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&anonymousWriter{ResponseWriter: w}, r)
	})
}

// anonymousWriter drops identity headers at write time.
type anonymousWriter struct {
	http.ResponseWriter
	wrote bool
}

func (aw *anonymousWriter) WriteHeader(code int) {
	aw.strip()
	aw.ResponseWriter.WriteHeader(code)
}

func (aw *anonymousWriter) Write(b []byte) (int, error) {
	aw.strip()
	return aw.ResponseWriter.Write(b)
}

func (aw *anonymousWriter) strip() {
	if aw.wrote {
		return
	}
	aw.wrote = true
	h := aw.Header()
	for _, name := range identityHeaders {
		h.Del(name)
	}
}

// Flush forwards Flush to the underlying ResponseWriter if it supports
// http.Flusher.
func (aw *anonymousWriter) Flush() {
	if f, ok := aw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
