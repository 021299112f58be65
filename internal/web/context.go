package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/rapidtable/internal/core"
)

// WithRequestMetadata records who made r for bulk action logging. RemoteAddr
// has already been resolved by the trusted proxy middleware.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithRequester(ctx, core.Requester{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
}
