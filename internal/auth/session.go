// Package auth carries the caller's identity through a request.
package auth

import (
	"context"
	"strings"
)

// Session is the authenticated owner and the bearer credential that
// authorises calls to the backend on the owner's behalf.
type Session struct {
	OwnerID string
	Token   string
}

// Authenticated reports whether both owner and credential are present.
func (s Session) Authenticated() bool {
	return strings.TrimSpace(s.OwnerID) != "" && strings.TrimSpace(s.Token) != ""
}

type ctxKey struct{}

func With(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// From returns the session on ctx, or the zero Session.
func From(ctx context.Context) Session {
	if ctx == nil {
		return Session{}
	}
	s, _ := ctx.Value(ctxKey{}).(Session)
	return s
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
