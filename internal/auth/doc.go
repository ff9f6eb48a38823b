// ABOUTME: Package documentation for the auth package.
// ABOUTME: Describes JWT verification and the HTTP bearer middleware.

// Package auth provides JWT-based authentication for the gateway API.
//
// Tokens are HS256-signed JWTs carrying the client identity in the "sub"
// claim. JWTVerifier both mints tokens (the `token` admin subcommand) and
// verifies them; HTTPAuthMiddleware guards API routes and places the client
// ID in the request context for handlers that want it.
package auth
