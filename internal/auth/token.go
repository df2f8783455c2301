package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultIssuer is the issuer stamped on tokens when none is configured.
const DefaultIssuer = "tenantd"

// MinSecretLength is the minimum HMAC secret length in bytes.
const MinSecretLength = 32

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrMalformedClaims = errors.New("malformed token claims")
)

// Claims is the identity a token carries.
type Claims struct {
	AdminID   uuid.UUID
	OrgID     uuid.UUID
	OrgName   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec signs and verifies time bounded claim sets.
type TokenCodec interface {
	Encode(claims Claims, ttl time.Duration) (string, error)
	Decode(token string) (*Claims, error)
}

type tokenClaims struct {
	AdminID string `json:"admin_id"`
	OrgID   string `json:"org_id"`
	OrgName string `json:"org_name"`
	jwt.RegisteredClaims
}

// JWTCodec implements TokenCodec with HS256 signed JWTs.
type JWTCodec struct {
	secret []byte
	issuer string
}

var _ TokenCodec = (*JWTCodec)(nil)

// NewJWTCodec creates a codec signing with secret. An empty issuer defaults to DefaultIssuer.
func NewJWTCodec(secret []byte, issuer string) (*JWTCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}

	return &JWTCodec{secret: secret, issuer: issuer}, nil
}

// Encode signs claims with an expiry of now + ttl.
func (c *JWTCodec) Encode(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	tc := &tokenClaims{
		AdminID: claims.AdminID.String(),
		OrgID:   claims.OrgID.String(),
		OrgName: claims.OrgName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.AdminID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tc)
	return token.SignedString(c.secret)
}

// Decode verifies signature, issuer and expiry and returns the claims.
func (c *JWTCodec) Decode(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	tc, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	adminID, err := uuid.Parse(tc.AdminID)
	if err != nil {
		return nil, fmt.Errorf("%w: admin_id: %w", ErrMalformedClaims, err)
	}

	orgID, err := uuid.Parse(tc.OrgID)
	if err != nil {
		return nil, fmt.Errorf("%w: org_id: %w", ErrMalformedClaims, err)
	}

	claims := &Claims{
		AdminID:   adminID,
		OrgID:     orgID,
		OrgName:   tc.OrgName,
		ExpiresAt: tc.ExpiresAt.Time,
	}
	if tc.IssuedAt != nil {
		claims.IssuedAt = tc.IssuedAt.Time
	}

	return claims, nil
}
