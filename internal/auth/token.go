// Package auth issues and verifies the short-lived bearer tokens the two
// services present to each other. Both sides share one HMAC secret; the
// issuer claim says which side is calling.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	IssuerController  = "print-controller"
	IssuerPrintServer = "print-server"

	defaultTokenTTL = time.Minute
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid service token")
)

type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns nil when secret is empty. A nil *Issuer authorizes
// nothing and is safe to use.
func NewIssuer(secret, issuer string) *Issuer {
	if secret == "" {
		return nil
	}
	return &Issuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}
}

func (i *Issuer) Token() (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}

// Authorize sets the Authorization header on req.
func (i *Issuer) Authorize(req *http.Request) error {
	if i == nil {
		return nil
	}
	token, err := i.Token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Verify checks a token signed with secret by expectedIssuer.
func Verify(secret, tokenString, expectedIssuer string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(expectedIssuer),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: token has no expiry", ErrInvalidToken)
	}
	return nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}
