package auth

import (
	"context"
	"errors"
)

// Session is the authenticated principal of one request. It is built from a
// verified access token and travels in the request context; nothing about the
// caller's identity is held in process-wide state.
type Session struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role"`
}

var ErrNoSession = errors.New("auth: no session in context")

type ctxKey int

const ctxSession ctxKey = iota

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxSession, s)
}

// SessionFrom returns the request session. A session without a user id or
// role is treated as absent.
func SessionFrom(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(ctxSession).(Session)
	if !ok || s.UserID == "" || s.Role == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}
