package reservation

import "errors"

// Domain errors returned by the coordinator and stores.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("concrete identity required")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
)

// AuthErrorKind classifies a verification failure.
type AuthErrorKind int

const (
	KindMissing AuthErrorKind = iota + 1
	KindMalformed
	KindSignatureInvalid
	KindExpired
	KindNoSubject
	KindSourceUnavailable
	KindKeyNotFound
	KindInvalidClaims
)

var kindNames = map[AuthErrorKind]string{
	KindMissing:           "missing",
	KindMalformed:         "malformed",
	KindSignatureInvalid:  "signature_invalid",
	KindExpired:           "expired",
	KindNoSubject:         "no_subject",
	KindSourceUnavailable: "source_unavailable",
	KindKeyNotFound:       "key_not_found",
	KindInvalidClaims:     "invalid_claims",
}

func (k AuthErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// AuthError is a classified token verification failure.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

// NewAuthError wraps err with the given kind.
func NewAuthError(kind AuthErrorKind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "reservation: auth " + e.Kind.String()
	}
	return "reservation: auth " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches any *AuthError of the same kind, so the sentinels below work
// with errors.Is.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks against verification failures.
var (
	ErrMissingCredentials = &AuthError{Kind: KindMissing}
	ErrMalformedToken     = &AuthError{Kind: KindMalformed}
	ErrSignatureInvalid   = &AuthError{Kind: KindSignatureInvalid}
	ErrTokenExpired       = &AuthError{Kind: KindExpired}
	ErrNoSubject          = &AuthError{Kind: KindNoSubject}
	ErrSourceUnavailable  = &AuthError{Kind: KindSourceUnavailable}
	ErrKeyNotFound        = &AuthError{Kind: KindKeyNotFound}
	ErrInvalidClaims      = &AuthError{Kind: KindInvalidClaims}
)

// AuthKind returns the kind of the first *AuthError in err's chain, or 0.
func AuthKind(err error) AuthErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}
