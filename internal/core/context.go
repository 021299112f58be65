package core

import "context"

type contextKey string

const ctxKeyRequester contextKey = "requester"

// Requester identifies the client behind a request for bulk action logs.
type Requester struct {
	IP        string
	UserAgent string
}

// ContextWithRequester attaches r to ctx.
func ContextWithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, ctxKeyRequester, r)
}

// RequesterFromContext returns the requester attached to ctx.
func RequesterFromContext(ctx context.Context) (Requester, bool) {
	r, ok := ctx.Value(ctxKeyRequester).(Requester)
	return r, ok
}
