package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantd/internal/auth"
	"github.com/wolfeidau/tenantd/internal/store"
	"github.com/wolfeidau/tenantd/internal/telemetry"
	"github.com/wolfeidau/tenantd/internal/tenant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// APIError is the body of every non 2xx response.
type APIError struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

var errBadRequest = errors.New("bad request")

type errorMapping struct {
	target error
	status int
	reason string
}

// Order matters: the first match wins.
var errorTable = []errorMapping{
	{tenant.ErrInvalidName, http.StatusBadRequest, "InvalidName"},
	{tenant.ErrOrganizationExists, http.StatusBadRequest, "OrganizationExists"},
	{tenant.ErrEmailTaken, http.StatusBadRequest, "EmailTaken"},
	{tenant.ErrNotFound, http.StatusNotFound, "NotFound"},
	{tenant.ErrNameTaken, http.StatusConflict, "NameTaken"},
	{tenant.ErrRenameInProgress, http.StatusConflict, "RenameInProgress"},
	{tenant.ErrMigrationFailed, http.StatusInternalServerError, "MigrationFailed"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "InvalidCredentials"},
	{auth.ErrNotLinked, http.StatusBadRequest, "NotLinked"},
	{auth.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{auth.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{store.ErrStorageUnavailable, http.StatusServiceUnavailable, "StorageUnavailable"},
	{errBadRequest, http.StatusBadRequest, "BadRequest"},
}

const migrationFailedMessage = "rename failed while copying documents; the source partition is intact and " +
	"remains authoritative, the partial destination will be removed by the recovery sweep"

func toAPIError(err error) APIError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return APIError{Code: http.StatusBadRequest, Reason: "BadRequest", Message: verrs.Error()}
	}

	for _, m := range errorTable {
		if !errors.Is(err, m.target) {
			continue
		}

		apiErr := APIError{Code: m.status, Reason: m.reason, Message: err.Error()}
		switch m.status {
		case http.StatusUnauthorized:
			// Do not reveal why a token or password was rejected.
			apiErr.Message = m.target.Error()
		case http.StatusServiceUnavailable:
			apiErr.Message = "storage temporarily unavailable, retry later"
		}
		if m.target == tenant.ErrMigrationFailed {
			apiErr.Message = migrationFailedMessage
		}
		return apiErr
	}

	return APIError{Code: http.StatusInternalServerError, Reason: "InternalError", Message: "internal server error"}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)

	event := zerolog.Ctx(r.Context()).Warn()
	if apiErr.Code >= http.StatusInternalServerError {
		event = zerolog.Ctx(r.Context()).Error()
	}
	event.Err(err).Str("reason", apiErr.Reason).Msg("Request failed")

	telemetry.GetMetrics().APIErrorsTotal.Add(r.Context(), 1,
		metric.WithAttributes(attribute.String("reason", apiErr.Reason)))

	writeJSON(w, apiErr.Code, apiErr)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
