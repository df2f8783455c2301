package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantd/internal/auth"
	"github.com/wolfeidau/tenantd/internal/credential"
	"github.com/wolfeidau/tenantd/internal/registry"
	"github.com/wolfeidau/tenantd/internal/store"
	"github.com/wolfeidau/tenantd/internal/store/memory"
	"github.com/wolfeidau/tenantd/internal/tenant"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct horse battery staple"

type testServer struct {
	*httptest.Server
	stores store.Stores
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()

	stores := memory.NewStores()

	hasher, err := credential.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	codec, err := auth.NewJWTCodec([]byte(strings.Repeat("k", auth.MinSecretLength)), "")
	require.NoError(t, err)

	reg := registry.New(stores.Admins, stores.Organizations, hasher)
	guard := auth.NewGuard(reg, codec, time.Hour)
	manager := tenant.NewManager(tenant.Config{
		Registry:                    reg,
		Partitions:                  stores.Partitions,
		Renames:                     stores.Renames,
		Authorizer:                  guard,
		DeleteAdminWithOrganization: true,
	})

	srv := httptest.NewServer(New(manager, guard, cfg).Handler(zerolog.Nop()))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, stores: stores}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func (ts *testServer) create(t *testing.T, name, email string) {
	t.Helper()

	status, body := ts.do(t, http.MethodPost, "/org/create", "", map[string]string{
		"organization_name": name,
		"email":             email,
		"password":          testPassword,
	})
	require.Equal(t, http.StatusCreated, status, string(body))
}

func (ts *testServer) login(t *testing.T, email string) string {
	t.Helper()

	status, body := ts.do(t, http.MethodPost, "/admin/login", "", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var res TokenResponse
	require.NoError(t, json.Unmarshal(body, &res))
	require.Equal(t, "bearer", res.TokenType)

	return res.AccessToken
}

func decodeError(t *testing.T, body []byte) APIError {
	t.Helper()

	var apiErr APIError
	require.NoError(t, json.Unmarshal(body, &apiErr))
	return apiErr
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, Config{})

	status, body := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServer_CreateAndGet(t *testing.T) {
	ts := newTestServer(t, Config{})

	status, body := ts.do(t, http.MethodPost, "/org/create", "", map[string]string{
		"organization_name": "acme",
		"email":             "Admin@Acme.io",
		"password":          testPassword,
	})
	require.Equal(t, http.StatusCreated, status)

	var created CreateOrganizationResponse
	require.NoError(t, json.Unmarshal(body, &created))
	require.Equal(t, "acme", created.OrganizationName)
	require.Equal(t, "org_acme", created.PartitionName)
	require.Equal(t, "admin@acme.io", created.AdminEmail)

	status, body = ts.do(t, http.MethodGet, "/org/get?organization_name=acme", "", nil)
	require.Equal(t, http.StatusOK, status)

	var org OrganizationResponse
	require.NoError(t, json.Unmarshal(body, &org))
	require.Equal(t, created.OrgID, org.OrgID)
	require.NotEmpty(t, org.AdminID)

	t.Run("duplicate name", func(t *testing.T) {
		status, body := ts.do(t, http.MethodPost, "/org/create", "", map[string]string{
			"organization_name": "acme",
			"email":             "other@acme.io",
			"password":          testPassword,
		})
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "OrganizationExists", decodeError(t, body).Reason)
	})

	t.Run("duplicate email", func(t *testing.T) {
		status, body := ts.do(t, http.MethodPost, "/org/create", "", map[string]string{
			"organization_name": "globex",
			"email":             "admin@acme.io",
			"password":          testPassword,
		})
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "EmailTaken", decodeError(t, body).Reason)
	})

	t.Run("invalid name", func(t *testing.T) {
		status, body := ts.do(t, http.MethodPost, "/org/create", "", map[string]string{
			"organization_name": "not a name",
			"email":             "x@acme.io",
			"password":          testPassword,
		})
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "InvalidName", decodeError(t, body).Reason)
	})

	t.Run("request validation", func(t *testing.T) {
		status, body := ts.do(t, http.MethodPost, "/org/create", "", map[string]string{
			"organization_name": "initech",
			"email":             "not-an-email",
			"password":          "short",
		})
		require.Equal(t, http.StatusBadRequest, status)
		apiErr := decodeError(t, body)
		require.Equal(t, "BadRequest", apiErr.Reason)
		require.Contains(t, apiErr.Message, "Email")
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		status, body := ts.do(t, http.MethodPost, "/org/create", "", map[string]string{
			"organization_name": "initech",
			"email":             "x@initech.io",
			"password":          testPassword,
			"collection_name":   "org_elsewhere",
		})
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "BadRequest", decodeError(t, body).Reason)
	})

	t.Run("get missing", func(t *testing.T) {
		status, body := ts.do(t, http.MethodGet, "/org/get?organization_name=nope", "", nil)
		require.Equal(t, http.StatusNotFound, status)
		require.Equal(t, "NotFound", decodeError(t, body).Reason)

		status, _ = ts.do(t, http.MethodGet, "/org/get", "", nil)
		require.Equal(t, http.StatusBadRequest, status)
	})
}

func TestServer_Login(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.create(t, "acme", "admin@acme.io")

	t.Run("success", func(t *testing.T) {
		require.NotEmpty(t, ts.login(t, "admin@acme.io"))
	})

	t.Run("wrong password", func(t *testing.T) {
		status, body := ts.do(t, http.MethodPost, "/admin/login", "", map[string]string{
			"email":    "admin@acme.io",
			"password": "wrong password",
		})
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, "InvalidCredentials", decodeError(t, body).Reason)
	})

	t.Run("unknown email", func(t *testing.T) {
		status, body := ts.do(t, http.MethodPost, "/admin/login", "", map[string]string{
			"email":    "ghost@acme.io",
			"password": testPassword,
		})
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, "InvalidCredentials", decodeError(t, body).Reason)
	})
}

func TestServer_LoginRateLimit(t *testing.T) {
	ts := newTestServer(t, Config{LoginRateLimit: 2, LoginRateWindow: time.Minute})

	for range 2 {
		status, _ := ts.do(t, http.MethodPost, "/admin/login", "", map[string]string{
			"email":    "ghost@acme.io",
			"password": testPassword,
		})
		require.Equal(t, http.StatusUnauthorized, status)
	}

	status, body := ts.do(t, http.MethodPost, "/admin/login", "", map[string]string{
		"email":    "ghost@acme.io",
		"password": testPassword,
	})
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "TooManyRequests", decodeError(t, body).Reason)

	// Other routes are not limited.
	status, _ = ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestServer_Rename(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.create(t, "acme", "admin@acme.io")
	ts.create(t, "globex", "admin@globex.io")
	token := ts.login(t, "admin@acme.io")

	for i := range 3 {
		status, body := ts.do(t, http.MethodPost, "/org/documents", token, map[string]any{"n": i})
		require.Equal(t, http.StatusCreated, status, string(body))
	}

	rename := func(token, from, to string) (int, []byte) {
		return ts.do(t, http.MethodPut, "/org/update", token, map[string]string{
			"old_organization_name": from,
			"new_organization_name": to,
		})
	}

	t.Run("requires a token", func(t *testing.T) {
		status, body := rename("", "acme", "initech")
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, "Unauthorized", decodeError(t, body).Reason)
	})

	t.Run("rejects a forged token", func(t *testing.T) {
		status, _ := rename(token+"x", "acme", "initech")
		require.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("other owner", func(t *testing.T) {
		status, body := rename(token, "globex", "initech")
		require.Equal(t, http.StatusForbidden, status)
		require.Equal(t, "Forbidden", decodeError(t, body).Reason)
	})

	t.Run("name taken", func(t *testing.T) {
		status, body := rename(token, "acme", "globex")
		require.Equal(t, http.StatusConflict, status)
		require.Equal(t, "NameTaken", decodeError(t, body).Reason)
	})

	t.Run("email must match the caller", func(t *testing.T) {
		status, _ := ts.do(t, http.MethodPut, "/org/update", token, map[string]string{
			"old_organization_name": "acme",
			"new_organization_name": "initech",
			"email":                 "admin@globex.io",
		})
		require.Equal(t, http.StatusForbidden, status)
	})

	t.Run("success", func(t *testing.T) {
		status, body := rename(token, "acme", "initech")
		require.Equal(t, http.StatusOK, status, string(body))

		var res MessageResponse
		require.NoError(t, json.Unmarshal(body, &res))
		require.Equal(t, "org_initech", res.Organization.PartitionName)

		status, _ = ts.do(t, http.MethodGet, "/org/get?organization_name=acme", "", nil)
		require.Equal(t, http.StatusNotFound, status)

		// The token issued before the rename still works and sees the migrated documents.
		status, body = ts.do(t, http.MethodGet, "/org/documents", token, nil)
		require.Equal(t, http.StatusOK, status)

		var docs DocumentsResponse
		require.NoError(t, json.Unmarshal(body, &docs))
		require.Len(t, docs.Documents, 3)
	})
}

func TestServer_Delete(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.create(t, "acme", "admin@acme.io")
	token := ts.login(t, "admin@acme.io")

	status, _ := ts.do(t, http.MethodDelete, "/org/delete?organization_name=acme", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := ts.do(t, http.MethodDelete, "/org/delete?organization_name=acme", token, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	status, _ = ts.do(t, http.MethodGet, "/org/get?organization_name=acme", "", nil)
	require.Equal(t, http.StatusNotFound, status)

	// The admin went with the organization, so the old token is dead.
	status, body = ts.do(t, http.MethodGet, "/org/documents", token, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Unauthorized", decodeError(t, body).Reason)

	exists, err := ts.stores.Partitions.Exists(t.Context(), "org_acme")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestServer_Documents(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.create(t, "acme", "admin@acme.io")
	token := ts.login(t, "admin@acme.io")

	status, body := ts.do(t, http.MethodPost, "/org/documents", token, map[string]any{"title": "hello"})
	require.Equal(t, http.StatusCreated, status)

	var created DocumentResponse
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ID)

	status, _ = ts.do(t, http.MethodPost, "/org/documents", token, []int{1, 2})
	require.Equal(t, http.StatusBadRequest, status)

	status, body = ts.do(t, http.MethodGet, "/org/documents?limit=1", token, nil)
	require.Equal(t, http.StatusOK, status)

	var docs DocumentsResponse
	require.NoError(t, json.Unmarshal(body, &docs))
	require.Len(t, docs.Documents, 1)
	require.Equal(t, "hello", docs.Documents[0].Body["title"])

	for _, limit := range []string{"0", "abc", "100000"} {
		status, _ := ts.do(t, http.MethodGet, "/org/documents?limit="+url.QueryEscape(limit), token, nil)
		require.Equal(t, http.StatusBadRequest, status, limit)
	}
}

func TestServer_CORS(t *testing.T) {
	ts := newTestServer(t, Config{CORSOrigins: []string{"https://app.acme.io"}})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/org/update", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.acme.io")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "https://app.acme.io", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"invalid name", fmt.Errorf("%w: bad", tenant.ErrInvalidName), http.StatusBadRequest, "InvalidName"},
		{"org exists", tenant.ErrOrganizationExists, http.StatusBadRequest, "OrganizationExists"},
		{"not found", tenant.ErrNotFound, http.StatusNotFound, "NotFound"},
		{"name taken", tenant.ErrNameTaken, http.StatusConflict, "NameTaken"},
		{"rename in progress", tenant.ErrRenameInProgress, http.StatusConflict, "RenameInProgress"},
		{"not linked", auth.ErrNotLinked, http.StatusBadRequest, "NotLinked"},
		{"forbidden", auth.ErrForbidden, http.StatusForbidden, "Forbidden"},
		{"storage", fmt.Errorf("get: %w", store.ErrStorageUnavailable), http.StatusServiceUnavailable, "StorageUnavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "InternalError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := toAPIError(tt.err)
			require.Equal(t, tt.status, apiErr.Code)
			require.Equal(t, tt.reason, apiErr.Reason)
		})
	}

	t.Run("migration failure says the source is intact", func(t *testing.T) {
		err := &tenant.MigrationError{Source: "org_a", Destination: "org_b", Err: errors.New("disk full")}
		apiErr := toAPIError(fmt.Errorf("rename: %w", err))
		require.Equal(t, http.StatusInternalServerError, apiErr.Code)
		require.Equal(t, "MigrationFailed", apiErr.Reason)
		require.Contains(t, apiErr.Message, "source partition is intact")
	})

	t.Run("unauthorized hides the cause", func(t *testing.T) {
		apiErr := toAPIError(fmt.Errorf("%w: token is expired", auth.ErrUnauthorized))
		require.Equal(t, http.StatusUnauthorized, apiErr.Code)
		require.Equal(t, auth.ErrUnauthorized.Error(), apiErr.Message)
	})
}

func TestServer_Lifecycle(t *testing.T) {
	ts := newTestServer(t, Config{})

	status, body := ts.do(t, http.MethodPost, "/org/create", "", map[string]string{
		"organization_name": "acme",
		"email":             "a@x.com",
		"password":          "pw1",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = ts.do(t, http.MethodPost, "/admin/login", "", map[string]string{
		"email":    "a@x.com",
		"password": "pw1",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(body, &tok))

	status, body = ts.do(t, http.MethodPut, "/org/update", tok.AccessToken, map[string]string{
		"old_organization_name": "acme",
		"new_organization_name": "acme-eu",
	})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = ts.do(t, http.MethodGet, "/org/get?organization_name=acme-eu", "", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var org OrganizationResponse
	require.NoError(t, json.Unmarshal(body, &org))
	require.Equal(t, "org_acme-eu", org.PartitionName)

	status, body = ts.do(t, http.MethodGet, "/org/get?organization_name=acme", "", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NotFound", decodeError(t, body).Reason)

	status, body = ts.do(t, http.MethodDelete, "/org/delete?organization_name=acme-eu", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	for _, name := range []string{"org_acme", "org_acme-eu"} {
		exists, err := ts.stores.Partitions.Exists(t.Context(), name)
		require.NoError(t, err)
		require.False(t, exists, name)
	}
}

func TestServer_CreatePasswordRules(t *testing.T) {
	ts := newTestServer(t, Config{})

	tests := []struct {
		name     string
		password string
		status   int
	}{
		{"short password accepted", "pw1", http.StatusCreated},
		{"empty password", "", http.StatusBadRequest},
		{"longer than bcrypt accepts", strings.Repeat("p", 73), http.StatusBadRequest},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, http.MethodPost, "/org/create", "", map[string]string{
				"organization_name": fmt.Sprintf("org%d", i),
				"email":             fmt.Sprintf("admin%d@x.com", i),
				"password":          tt.password,
			})
			require.Equal(t, tt.status, status, string(body))
		})
	}
}
