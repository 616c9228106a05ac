package auth

import (
	"context"
	"errors"
)

// ErrAuthRequired is returned when an operation needs a signed-in principal.
var ErrAuthRequired = errors.New("authentication required")

// Principal is the signed-in caller.
type Principal struct {
	UserID string
	Name   string
	Role   string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, false
	}
	return p, true
}

// OwnerID yields the stable owner id of the signed-in principal.
func OwnerID(ctx context.Context) (string, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return "", ErrAuthRequired
	}
	return p.UserID, nil
}
