package auth

import "context"

// ContextWithIdentity builds a request context carrying the given caller
// identity. Used by handler tests across domain packages.
func ContextWithIdentity(ctx context.Context, userID, role, email string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserRoleKey, role)
	ctx = context.WithValue(ctx, UserEmailKey, email)
	return ctx
}

func contextWithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, UserRoleKey, role)
}
