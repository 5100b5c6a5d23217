package identity

import "errors"

var (
	ErrMissingSigningKey = errors.New("identity: missing signing key")
	ErrMalformedToken    = errors.New("identity: malformed token")
	ErrInvalidSignature  = errors.New("identity: invalid signature")
	ErrUnsupportedAlg    = errors.New("identity: unsupported signing algorithm")
	ErrExpiredToken      = errors.New("identity: token is expired")
	ErrTokenNotYetValid  = errors.New("identity: token is not valid yet")
	ErrInvalidSubject    = errors.New("identity: subject is not a user id")
	ErrInvalidIssuer     = errors.New("identity: unexpected issuer")
	ErrMissingToken      = errors.New("identity: missing bearer token")
)
