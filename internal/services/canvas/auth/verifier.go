package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/louisbranch/gridpaint/internal/platform/errors"
	"github.com/louisbranch/gridpaint/internal/services/canvas/storage"
)

// Assertion carries the credentials a client presents at connection time:
// a bearer token minted at login and the opaque secondary identifier issued
// at registration.
type Assertion struct {
	Token      string
	Identifier string
}

// Verifier validates connection assertions. It is read-only: verification
// never mutates identity or quota state.
type Verifier struct {
	identities storage.IdentityStore
	secret     []byte
	now        func() time.Time
}

// assertionClaims is the internal claims type used for JWT parsing.
type assertionClaims struct {
	jwt.RegisteredClaims
	ParticipantID string `json:"participant_id"`
}

// NewVerifier builds a verifier over the given identity store and the HMAC
// secret shared with the identity system.
func NewVerifier(identities storage.IdentityStore, secret []byte) *Verifier {
	return &Verifier{
		identities: identities,
		secret:     secret,
		now:        time.Now,
	}
}

// Verify resolves an assertion to a stable participant identifier.
//
// Both credential parts must be present and mutually consistent: the
// secondary identifier must match, via a one-way bcrypt comparison, the hash
// on record for the participant named by the bearer token. Any failure
// terminates the connection attempt before a session exists.
func (v *Verifier) Verify(ctx context.Context, assertion Assertion) (string, error) {
	if v == nil || v.identities == nil || len(v.secret) == 0 {
		return "", errors.New("verifier is not configured")
	}

	token := strings.TrimSpace(assertion.Token)
	identifier := strings.TrimSpace(assertion.Identifier)
	if token == "" || identifier == "" {
		return "", apperrors.New(apperrors.CodeAuthMissingCredential, "token and identifier are required")
	}

	var claims assertionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeAuthInvalidToken, "bearer token is invalid", err)
	}

	participantID := strings.TrimSpace(claims.ParticipantID)
	if participantID == "" {
		return "", apperrors.New(apperrors.CodeAuthInvalidToken, "bearer token names no participant")
	}

	identity, err := v.identities.ResolveParticipant(ctx, participantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperrors.New(apperrors.CodeAuthParticipantNotFound, "participant is not on record")
		}
		return "", apperrors.Wrap(apperrors.CodeStorageUnavailable, "resolve participant", err)
	}
	if strings.TrimSpace(identity.IdentifierHash) == "" {
		return "", apperrors.New(apperrors.CodeAuthParticipantNotFound, "participant has no identifier on record")
	}

	if bcrypt.CompareHashAndPassword([]byte(identity.IdentifierHash), []byte(identifier)) != nil {
		return "", apperrors.New(apperrors.CodeAuthIdentifierMismatch, "secondary identifier mismatch")
	}

	return participantID, nil
}
