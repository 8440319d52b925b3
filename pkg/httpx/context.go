package httpx

import (
	"context"

	"github.com/harborcrm/identity/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID      ctxKey = "user_id"
	CtxKeyPermissions ctxKey = "permissions"
	CtxKeyClaims      ctxKey = "claims"
)

// UserIDFromContext returns the authenticated subject id, if any.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}

// ClaimsFromContext returns the full verified claims, if any.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

func permissionsFromContext(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyPermissions).([]string); ok {
		return v
	}
	return nil
}
