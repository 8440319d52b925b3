package httpx

import (
	"encoding/json"
	"net/http"
)

// Middleware is the common shape for HTTP middleware in this codebase.
type Middleware func(http.Handler) http.Handler

// Chain wraps h with the given middlewares, outermost first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ErrorResponse is the uniform error body for the auth surface. Descriptions
// stay deliberately generic for authentication failures so callers cannot
// probe which sub-case occurred.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with no-store caching headers, which
// token responses require.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache prevents intermediaries from caching sensitive responses.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
