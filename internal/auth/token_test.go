package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_RoundTrip(t *testing.T) {
	issuer := NewIssuer("s3cret", IssuerPrintServer)
	token, err := issuer.Token()
	require.NoError(t, err)

	assert.NoError(t, Verify("s3cret", token, IssuerPrintServer))
}

func TestVerify_Rejects(t *testing.T) {
	token, err := NewIssuer("s3cret", IssuerPrintServer).Token()
	require.NoError(t, err)

	assert.ErrorIs(t, Verify("other", token, IssuerPrintServer), ErrInvalidToken)
	assert.ErrorIs(t, Verify("s3cret", token, IssuerController), ErrInvalidToken)
	assert.ErrorIs(t, Verify("s3cret", "not-a-jwt", IssuerPrintServer), ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	issuer := NewIssuer("s3cret", IssuerController)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := issuer.Token()
	require.NoError(t, err)

	assert.ErrorIs(t, Verify("s3cret", token, IssuerController), ErrInvalidToken)
}

func TestNilIssuer(t *testing.T) {
	issuer := NewIssuer("", IssuerController)
	assert.Nil(t, issuer)

	req, err := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
	require.NoError(t, err)
	require.NoError(t, issuer.Authorize(req))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestAuthorize_SetsBearer(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
	require.NoError(t, err)
	require.NoError(t, NewIssuer("s3cret", IssuerController).Authorize(req))

	token, err := BearerToken(req.Header.Get("Authorization"))
	require.NoError(t, err)
	assert.NoError(t, Verify("s3cret", token, IssuerController))
}

func TestBearerToken(t *testing.T) {
	_, err := BearerToken("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = BearerToken("Basic abc")
	assert.ErrorIs(t, err, ErrMissingToken)

	tok, err := BearerToken("bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)
}
