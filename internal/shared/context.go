// Package shared holds request-scoped helpers used across modules.
package shared

import "context"

type contextKey string

const businessIDKey contextKey = "business_id"

// ContextWithBusinessID stores the resolved business identity. The caller
// is assumed to already be authorized for this business; resolution happens
// outside this core.
func ContextWithBusinessID(ctx context.Context, businessID string) context.Context {
	return context.WithValue(ctx, businessIDKey, businessID)
}

// BusinessIDFromContext returns the resolved business identity, or "".
func BusinessIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(businessIDKey).(string); ok {
		return v
	}
	return ""
}
