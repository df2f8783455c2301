package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantd/internal/auth"
	"github.com/wolfeidau/tenantd/internal/registry"
	"github.com/wolfeidau/tenantd/internal/telemetry"
)

const maxDocumentsLimit = 1000

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	metrics := telemetry.GetMetrics()

	token, err := s.guard.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		metrics.LoginFailuresTotal.Add(r.Context(), 1)
		writeError(w, r, err)
		return
	}
	metrics.LoginsTotal.Add(r.Context(), 1)

	writeJSON(w, http.StatusOK, &TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.manager.Create(r.Context(), req.OrganizationName, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCreateResponse(res))
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("organization_name")
	if name == "" {
		writeError(w, r, fmt.Errorf("%w: organization_name is required", errBadRequest))
		return
	}

	org, err := s.manager.Get(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrganizationResponse(org))
}

func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrganizationRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ac := auth.FromContext(r.Context())
	if req.Email != "" && registry.NormalizeEmail(req.Email) != ac.Email {
		writeError(w, r, fmt.Errorf("%w: email does not match the authenticated admin", auth.ErrForbidden))
		return
	}

	org, err := s.manager.Rename(r.Context(), ac, req.OldOrganizationName, req.NewOrganizationName)
	if err != nil {
		writeError(w, r, err)
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("org_id", org.OrgID.String()).
		Str("from", req.OldOrganizationName).
		Str("to", org.Name).
		Msg("Organization renamed")

	writeJSON(w, http.StatusOK, &MessageResponse{
		Message:      "Organization updated successfully",
		Organization: toOrganizationResponse(org),
	})
}

func (s *Server) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("organization_name")
	if name == "" {
		writeError(w, r, fmt.Errorf("%w: organization_name is required", errBadRequest))
		return
	}

	if err := s.manager.Delete(r.Context(), auth.FromContext(r.Context()), name); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &MessageResponse{Message: "Organization deleted successfully"})
}

func (s *Server) insertDocument(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
		writeError(w, r, fmt.Errorf("%w: body must be a JSON object", errBadRequest))
		return
	}

	id, err := s.manager.InsertDocument(r.Context(), auth.FromContext(r.Context()), body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, &DocumentResponse{ID: id})
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDocumentsLimit {
			writeError(w, r, fmt.Errorf("%w: limit must be between 1 and %d", errBadRequest, maxDocumentsLimit))
			return
		}
		limit = n
	}

	docs, err := s.manager.ListDocuments(r.Context(), auth.FromContext(r.Context()), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res := &DocumentsResponse{Documents: make([]DocumentResponse, 0, len(docs))}
	for _, doc := range docs {
		res.Documents = append(res.Documents, DocumentResponse{ID: doc.ID, Body: doc.Body})
	}

	writeJSON(w, http.StatusOK, res)
}
