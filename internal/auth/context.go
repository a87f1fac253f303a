package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxTenantID
	ctxRole
	ctxAppID
	ctxAppName
)

// Identity is the request-scoped caller identity extracted from a verified token.
type Identity struct {
	UserID   string
	AppID    string
	AppName  string
	TenantID string
	Role     string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, id.UserID)
	ctx = context.WithValue(ctx, ctxTenantID, id.TenantID)
	ctx = context.WithValue(ctx, ctxRole, id.Role)
	ctx = context.WithValue(ctx, ctxAppID, id.AppID)
	ctx = context.WithValue(ctx, ctxAppName, id.AppName)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("user_id not in context")
}

func TenantID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxTenantID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("tenant_id not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}

// AppID returns the registered application id, empty for user tokens.
func AppID(ctx context.Context) string {
	v := ctx.Value(ctxAppID)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// AppName returns the registered application display name, empty for user tokens.
func AppName(ctx context.Context) string {
	v := ctx.Value(ctxAppName)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
