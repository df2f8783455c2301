package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte(strings.Repeat("k", MinSecretLength))

func TestNewJWTCodec(t *testing.T) {
	t.Run("short secret", func(t *testing.T) {
		c, err := NewJWTCodec([]byte("short"), "")
		require.Error(t, err)
		require.Nil(t, c)
	})

	t.Run("default issuer", func(t *testing.T) {
		c, err := NewJWTCodec(testSecret, "")
		require.NoError(t, err)
		require.Equal(t, DefaultIssuer, c.issuer)
	})
}

func TestJWTCodec_RoundTrip(t *testing.T) {
	c, err := NewJWTCodec(testSecret, "")
	require.NoError(t, err)

	claims := Claims{AdminID: uuid.New(), OrgID: uuid.New(), OrgName: "acme"}

	token, err := c.Encode(claims, time.Minute)
	require.NoError(t, err)

	decoded, err := c.Decode(token)
	require.NoError(t, err)
	require.Equal(t, claims.AdminID, decoded.AdminID)
	require.Equal(t, claims.OrgID, decoded.OrgID)
	require.Equal(t, "acme", decoded.OrgName)
	require.WithinDuration(t, time.Now().Add(time.Minute), decoded.ExpiresAt, 2*time.Second)
	require.WithinDuration(t, time.Now(), decoded.IssuedAt, 2*time.Second)
}

func TestJWTCodec_Decode(t *testing.T) {
	c, err := NewJWTCodec(testSecret, "")
	require.NoError(t, err)

	sign := func(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}

	valid := func() *tokenClaims {
		return &tokenClaims{
			AdminID: uuid.NewString(),
			OrgID:   uuid.NewString(),
			OrgName: "acme",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    DefaultIssuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}
	}

	t.Run("expired", func(t *testing.T) {
		tc := valid()
		tc.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

		_, err := c.Decode(sign(t, jwt.SigningMethodHS256, testSecret, tc))
		require.ErrorIs(t, err, ErrInvalidToken)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("missing expiry", func(t *testing.T) {
		tc := valid()
		tc.ExpiresAt = nil

		_, err := c.Decode(sign(t, jwt.SigningMethodHS256, testSecret, tc))
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := []byte(strings.Repeat("x", MinSecretLength))

		_, err := c.Decode(sign(t, jwt.SigningMethodHS256, other, valid()))
		require.ErrorIs(t, err, ErrInvalidToken)
		require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		_, err := c.Decode(sign(t, jwt.SigningMethodHS512, testSecret, valid()))
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		tc := valid()
		tc.Issuer = "someone-else"

		_, err := c.Decode(sign(t, jwt.SigningMethodHS256, testSecret, tc))
		require.ErrorIs(t, err, ErrInvalidToken)
		require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("malformed admin id", func(t *testing.T) {
		tc := valid()
		tc.AdminID = "not-a-uuid"

		_, err := c.Decode(sign(t, jwt.SigningMethodHS256, testSecret, tc))
		require.ErrorIs(t, err, ErrMalformedClaims)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := c.Decode("not.a.jwt")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}
