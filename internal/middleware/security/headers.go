package security

import "net/http"

// HeadersConfig holds the response headers applied to every API response.
type HeadersConfig struct {
	XContentTypeOptions string
	XFrameOptions       string
	ReferrerPolicy      string
	CacheControl        string
}

// DefaultHeadersConfig returns defaults for a JSON API that serves no documents.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		XContentTypeOptions: "nosniff",
		XFrameOptions:       "DENY",
		ReferrerPolicy:      "no-referrer",
		CacheControl:        "no-store",
	}
}

// Headers returns middleware that sets the configured headers.
func Headers(config HeadersConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			setIfNotEmpty(h, "X-Content-Type-Options", config.XContentTypeOptions)
			setIfNotEmpty(h, "X-Frame-Options", config.XFrameOptions)
			setIfNotEmpty(h, "Referrer-Policy", config.ReferrerPolicy)
			setIfNotEmpty(h, "Cache-Control", config.CacheControl)
			next.ServeHTTP(w, r)
		})
	}
}

func setIfNotEmpty(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}
