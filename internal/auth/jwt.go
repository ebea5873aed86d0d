package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/models"
)

// ErrInvalidToken is returned for any access token which fails verification.
var ErrInvalidToken = errors.New("invalid access token")

// minSecretLength is the shortest accepted HMAC secret.
const minSecretLength = 32

// SessionClaims are the claims carried by identity provider access tokens.
type SessionClaims struct {
	Email     string `json:"email,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier turns identity provider access tokens into principals.
type TokenVerifier struct {
	key    any
	method jwt.SigningMethod
	issuer string
	clock  clockwork.Clock
}

// VerifierOption configures a TokenVerifier.
type VerifierOption func(*TokenVerifier)

// WithIssuer requires tokens to carry the given iss claim.
func WithIssuer(issuer string) VerifierOption {
	return func(v *TokenVerifier) {
		v.issuer = issuer
	}
}

// WithClock sets the clock used for expiry checks.
func WithClock(clock clockwork.Clock) VerifierOption {
	return func(v *TokenVerifier) {
		v.clock = clock
	}
}

// NewHMACVerifier creates a verifier for HS256 tokens signed with a shared
// secret.
func NewHMACVerifier(secret []byte, opts ...VerifierOption) (*TokenVerifier, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("JWT secret must be at least %d bytes", minSecretLength)
	}

	return newVerifier(secret, jwt.SigningMethodHS256, opts), nil
}

// NewECDSAVerifierFromPEM creates a verifier for ES256 tokens.
func NewECDSAVerifierFromPEM(publicKeyPEM string, opts ...VerifierOption) (*TokenVerifier, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("JWT public key not provided")
	}

	publicKey, err := jwt.ParseECPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, err
	}

	return newVerifier(publicKey, jwt.SigningMethodES256, opts), nil
}

// NewECDSAVerifier creates a verifier for ES256 tokens.
func NewECDSAVerifier(publicKey *ecdsa.PublicKey, opts ...VerifierOption) *TokenVerifier {
	return newVerifier(publicKey, jwt.SigningMethodES256, opts)
}

func newVerifier(key any, method jwt.SigningMethod, opts []VerifierOption) *TokenVerifier {
	v := &TokenVerifier{
		key:    key,
		method: method,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the token signature and expiry and returns the principal it
// identifies, including its session.
func (v *TokenVerifier) Verify(tokenStr string) (models.Principal, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, parserOpts...)
	if err != nil {
		log.Debug().Err(err).Msg("JWT parse error")
		return models.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !parsed.Valid {
		return models.Principal{}, ErrInvalidToken
	}

	principalID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: subject is not a principal id", ErrInvalidToken)
	}

	session := &models.Session{
		PrincipalID: principalID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}

	if claims.IssuedAt != nil {
		session.CreatedAt = claims.IssuedAt.Time
	}

	if claims.SessionID != "" {
		sessionID, err := uuid.Parse(claims.SessionID)
		if err != nil {
			return models.Principal{}, fmt.Errorf("%w: invalid session id", ErrInvalidToken)
		}
		session.SessionID = sessionID
	}

	return models.Principal{
		PrincipalID: principalID,
		Email:       claims.Email,
		Session:     session,
	}, nil
}
