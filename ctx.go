package auth

import (
	"context"
)

var subjectCtxKey = &contextKey{"subject"}

type contextKey struct {
	name string
}

// WithSubject binds the authenticated username to the context
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectCtxKey, subject)
}

// WithoutSubject shadows any subject bound by a parent context
func WithoutSubject(ctx context.Context) context.Context {
	return context.WithValue(ctx, subjectCtxKey, "")
}

// SubjectFromContext returns the authenticated username, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	raw, ok := ctx.Value(subjectCtxKey).(string)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}
