// Package identity authenticates gateway callers.
//
// Callers present an HS256 bearer token whose sub claim is their user UUID.
// Middleware verifies it and marks the request with gate.WithUserID; requests
// without valid credentials pass through unauthenticated so that the
// AuthPresence guard produces the uniform 401 body.
//
//	signer, err := identity.NewSigner(cfg.JWTSigningKey, identity.WithIssuer("quotagate"))
//	r.Use(identity.Middleware(signer, identity.WithLogger(log)))
//
// For local development WithDevHeader accepts a raw X-User-ID header instead.
package identity
