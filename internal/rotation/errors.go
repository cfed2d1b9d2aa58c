package rotation

import "errors"

var (
	// ErrInvalidToken covers unknown, revoked and expired tokens. The caller
	// should force re-authentication; no security response has been taken.
	ErrInvalidToken = errors.New("invalid refresh token")

	// ErrSecurityViolation means reuse or family compromise was detected and
	// the whole family has been revoked.
	ErrSecurityViolation = errors.New("refresh token security violation")

	// ErrTooManySessions means the concurrent session cap was exceeded. The
	// presenting family has been revoked, same as a security violation.
	ErrTooManySessions = errors.New("too many concurrent sessions")
)
