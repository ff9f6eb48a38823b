// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithClient/ClientFromContext for propagating identity via context

package auth

import "context"

// clientIDKey is the key type for storing the authenticated client ID.
type clientIDKey struct{}

// WithClient returns a new context with the authenticated client ID attached.
func WithClient(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, clientID)
}

// ClientFromContext retrieves the authenticated client ID, returning "" if
// the request was not authenticated.
func ClientFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}
