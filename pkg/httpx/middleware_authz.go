package httpx

import (
	"net/http"
	"strings"
)

// RequireAnyPermission passes when the verified claims carry at least one of
// the listed permissions. Authorization decisions use the snapshot resolved
// at mint time; a change in grants takes effect on the next mint/rotation.
func RequireAnyPermission(required ...string) Middleware {
	want := make(map[string]struct{}, len(required))
	for _, p := range required {
		want[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range permissionsFromContext(r.Context()) {
				if _, ok := want[p]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}

			writePermissionError(w, required...)
		})
	}
}

// RequireAllPermissions passes only when every listed permission is present.
func RequireAllPermissions(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			have := make(map[string]struct{})
			for _, p := range permissionsFromContext(r.Context()) {
				have[p] = struct{}{}
			}

			for _, req := range required {
				if _, ok := have[req]; !ok {
					writePermissionError(w, required...)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writePermissionError(w http.ResponseWriter, required ...string) {
	w.Header().
		Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("insufficient_permissions"))
}
