package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/tenant"
)

// LoginRequest is the body of POST /admin/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// CreateOrganizationRequest is the body of POST /org/create.
type CreateOrganizationRequest struct {
	OrganizationName string `json:"organization_name" validate:"required"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,max=72"`
}

// CreateOrganizationResponse summarises a created organization.
type CreateOrganizationResponse struct {
	OrgID            string `json:"org_id"`
	OrganizationName string `json:"organization_name"`
	PartitionName    string `json:"partition_name"`
	AdminEmail       string `json:"admin_email"`
}

// UpdateOrganizationRequest is the body of PUT /org/update. Email is optional; when present it must
// match the authenticated admin.
type UpdateOrganizationRequest struct {
	OldOrganizationName string `json:"old_organization_name" validate:"required"`
	NewOrganizationName string `json:"new_organization_name" validate:"required"`
	Email               string `json:"email" validate:"omitempty,email"`
}

// OrganizationResponse is the public view of an organization.
type OrganizationResponse struct {
	OrgID            string    `json:"org_id"`
	OrganizationName string    `json:"organization_name"`
	PartitionName    string    `json:"partition_name"`
	AdminID          string    `json:"admin_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// MessageResponse is returned by operations without a richer result.
type MessageResponse struct {
	Message      string                `json:"message"`
	Organization *OrganizationResponse `json:"organization,omitempty"`
}

// DocumentResponse is one document of a partition.
type DocumentResponse struct {
	ID   string         `json:"id"`
	Body map[string]any `json:"body,omitempty"`
}

// DocumentsResponse lists documents of the caller's partition.
type DocumentsResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

func toOrganizationResponse(org *models.Organization) *OrganizationResponse {
	return &OrganizationResponse{
		OrgID:            org.OrgID.String(),
		OrganizationName: org.Name,
		PartitionName:    org.PartitionName,
		AdminID:          org.AdminID.String(),
		CreatedAt:        org.CreatedAt,
		UpdatedAt:        org.UpdatedAt,
	}
}

func toCreateResponse(res *tenant.CreateResult) *CreateOrganizationResponse {
	return &CreateOrganizationResponse{
		OrgID:            res.OrgID.String(),
		OrganizationName: res.Name,
		PartitionName:    res.PartitionName,
		AdminEmail:       res.AdminEmail,
	}
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %w", errBadRequest, err)
	}
	return s.validate.Struct(dst)
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}
