package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/louisbranch/gridpaint/internal/platform/errors"
	"github.com/louisbranch/gridpaint/internal/services/canvas/storage"
)

var testSecret = []byte("test-secret")

type fakeIdentityStore struct {
	identities map[string]storage.Identity
	err        error
}

func (f fakeIdentityStore) ResolveParticipant(_ context.Context, participantID string) (storage.Identity, error) {
	if f.err != nil {
		return storage.Identity{}, f.err
	}
	identity, ok := f.identities[participantID]
	if !ok {
		return storage.Identity{}, storage.ErrNotFound
	}
	return identity, nil
}

func signToken(t *testing.T, participantID string, expiresIn time.Duration) string {
	t.Helper()
	claims := assertionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		ParticipantID: participantID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func hashIdentifier(t *testing.T, identifier string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(identifier), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash identifier: %v", err)
	}
	return string(hash)
}

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	identities := fakeIdentityStore{identities: map[string]storage.Identity{
		"participant-a": {
			ParticipantID:  "participant-a",
			IdentifierHash: hashIdentifier(t, "ident-a"),
		},
	}}
	return NewVerifier(identities, testSecret)
}

func TestVerifyAcceptsConsistentCredentials(t *testing.T) {
	verifier := newTestVerifier(t)

	participantID, err := verifier.Verify(context.Background(), Assertion{
		Token:      signToken(t, "participant-a", time.Hour),
		Identifier: "ident-a",
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if participantID != "participant-a" {
		t.Fatalf("participant id = %q, want %q", participantID, "participant-a")
	}
}

func TestVerifyRequiresBothCredentialParts(t *testing.T) {
	verifier := newTestVerifier(t)
	token := signToken(t, "participant-a", time.Hour)

	cases := []struct {
		name      string
		assertion Assertion
	}{
		{"missing token", Assertion{Identifier: "ident-a"}},
		{"missing identifier", Assertion{Token: token}},
		{"missing both", Assertion{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), tc.assertion)
			if apperrors.CodeOf(err) != apperrors.CodeAuthMissingCredential {
				t.Fatalf("err = %v, want missing credential code", err)
			}
		})
	}
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	verifier := newTestVerifier(t)

	claims := assertionClaims{ParticipantID: "participant-a"}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign forged token: %v", err)
	}

	_, err = verifier.Verify(context.Background(), Assertion{Token: forged, Identifier: "ident-a"})
	if apperrors.CodeOf(err) != apperrors.CodeAuthInvalidToken {
		t.Fatalf("err = %v, want invalid token code", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	verifier := newTestVerifier(t)

	_, err := verifier.Verify(context.Background(), Assertion{
		Token:      signToken(t, "participant-a", -time.Minute),
		Identifier: "ident-a",
	})
	if apperrors.CodeOf(err) != apperrors.CodeAuthInvalidToken {
		t.Fatalf("err = %v, want invalid token code", err)
	}
}

func TestVerifyRejectsUnknownParticipant(t *testing.T) {
	verifier := newTestVerifier(t)

	_, err := verifier.Verify(context.Background(), Assertion{
		Token:      signToken(t, "participant-unknown", time.Hour),
		Identifier: "ident-a",
	})
	if apperrors.CodeOf(err) != apperrors.CodeAuthParticipantNotFound {
		t.Fatalf("err = %v, want participant not found code", err)
	}
}

func TestVerifyRejectsIdentifierMismatch(t *testing.T) {
	verifier := newTestVerifier(t)

	_, err := verifier.Verify(context.Background(), Assertion{
		Token:      signToken(t, "participant-a", time.Hour),
		Identifier: "ident-wrong",
	})
	if apperrors.CodeOf(err) != apperrors.CodeAuthIdentifierMismatch {
		t.Fatalf("err = %v, want identifier mismatch code", err)
	}
}
