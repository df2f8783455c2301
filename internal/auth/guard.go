package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/registry"
)

// DefaultTokenTTL is how long issued tokens remain valid.
const DefaultTokenTTL = 60 * time.Minute

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotLinked          = errors.New("admin not linked to an organization")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)

// AuthContext is the identity resolved from a valid token.
type AuthContext struct {
	AdminID   uuid.UUID
	OrgID     uuid.UUID
	OrgName   string // Name at issuance, may be stale after a rename
	Email     string
	ExpiresAt time.Time
}

// Guard issues tokens on login, resolves tokens into an AuthContext and enforces ownership.
type Guard struct {
	registry *registry.Registry
	codec    TokenCodec
	ttl      time.Duration
}

// NewGuard creates a guard. A zero ttl defaults to DefaultTokenTTL.
func NewGuard(reg *registry.Registry, codec TokenCodec, ttl time.Duration) *Guard {
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	return &Guard{
		registry: reg,
		codec:    codec,
		ttl:      ttl,
	}
}

// Login verifies the admin's credentials and issues a token bound to the admin and their organization.
func (g *Guard) Login(ctx context.Context, email, password string) (string, error) {
	admin, err := g.registry.FindAdminByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("login: %w", err)
	}

	if !g.registry.VerifyPassword(admin, password) {
		log.Debug().Str("admin_id", admin.AdminID.String()).Msg("Password mismatch")
		return "", ErrInvalidCredentials
	}

	org, err := g.registry.FindOrganizationByAdmin(ctx, admin.AdminID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return "", ErrNotLinked
		}
		return "", fmt.Errorf("login: %w", err)
	}

	token, err := g.codec.Encode(Claims{
		AdminID: admin.AdminID,
		OrgID:   org.OrgID,
		OrgName: org.Name,
	}, g.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	log.Info().
		Str("admin_id", admin.AdminID.String()).
		Str("org_id", org.OrgID.String()).
		Msg("Issued token")

	return token, nil
}

// Authenticate decodes the token and re-loads the admin it names.
// Tokens of deleted admins are rejected even though their signature is still valid.
func (g *Guard) Authenticate(ctx context.Context, token string) (*AuthContext, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	claims, err := g.codec.Decode(token)
	if err != nil {
		log.Debug().Err(err).Msg("Token rejected")
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	admin, err := g.registry.FindAdmin(ctx, claims.AdminID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			log.Warn().Str("admin_id", claims.AdminID.String()).Msg("Token for unknown admin")
			return nil, fmt.Errorf("%w: admin no longer exists", ErrUnauthorized)
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	return &AuthContext{
		AdminID:   admin.AdminID,
		OrgID:     claims.OrgID,
		OrgName:   claims.OrgName,
		Email:     admin.Email,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Authorize returns the organization named orgName if the authenticated admin owns it.
// Ownership is read from the registry, not from the token claims.
func (g *Guard) Authorize(ctx context.Context, ac *AuthContext, orgName string) (*models.Organization, error) {
	if ac == nil {
		return nil, ErrUnauthorized
	}

	org, err := g.registry.FindOrganizationByName(ctx, orgName)
	if err != nil {
		return nil, err
	}

	if org.AdminID != ac.AdminID {
		log.Warn().
			Str("admin_id", ac.AdminID.String()).
			Str("org", orgName).
			Msg("Ownership check failed")
		return nil, ErrForbidden
	}

	return org, nil
}
