package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantd/internal/credential"
	"github.com/wolfeidau/tenantd/internal/store/memory"
	"golang.org/x/crypto/bcrypt"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	hasher, err := credential.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	return New(memory.NewAdminStore(), memory.NewOrganizationStore(), hasher)
}

func TestRegistry_CreateAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("stores digest and normalized email", func(t *testing.T) {
		reg := newTestRegistry(t)

		admin, err := reg.CreateAdmin(ctx, "  Admin@Acme.IO ", "s3cret")
		require.NoError(t, err)
		require.Equal(t, "admin@acme.io", admin.Email)
		require.NotEqual(t, "s3cret", admin.PasswordHash)
		require.True(t, reg.VerifyPassword(admin, "s3cret"))
		require.False(t, reg.VerifyPassword(admin, "wrong"))

		found, err := reg.FindAdminByEmail(ctx, "ADMIN@acme.io")
		require.NoError(t, err)
		require.Equal(t, admin.AdminID, found.AdminID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		reg := newTestRegistry(t)

		_, err := reg.CreateAdmin(ctx, "admin@acme.io", "s3cret")
		require.NoError(t, err)

		_, err = reg.CreateAdmin(ctx, "Admin@acme.io", "other")
		require.ErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("empty password", func(t *testing.T) {
		reg := newTestRegistry(t)

		_, err := reg.CreateAdmin(ctx, "admin@acme.io", "")
		require.Error(t, err)
	})
}

func TestRegistry_Organizations(t *testing.T) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		reg := newTestRegistry(t)
		admin, err := reg.CreateAdmin(ctx, "admin@acme.io", "s3cret")
		require.NoError(t, err)

		org, err := reg.CreateOrganization(ctx, "acme", "org_acme", admin.AdminID)
		require.NoError(t, err)

		byName, err := reg.FindOrganizationByName(ctx, "acme")
		require.NoError(t, err)
		require.Equal(t, org.OrgID, byName.OrgID)

		byPartition, err := reg.FindOrganizationByPartition(ctx, "org_acme")
		require.NoError(t, err)
		require.Equal(t, org.OrgID, byPartition.OrgID)

		byAdmin, err := reg.FindOrganizationByAdmin(ctx, admin.AdminID)
		require.NoError(t, err)
		require.Equal(t, org.OrgID, byAdmin.OrgID)

		owned, err := reg.FindOrganizationOwnedBy(ctx, admin.AdminID, "acme")
		require.NoError(t, err)
		require.Equal(t, org.OrgID, owned.OrgID)

		_, err = reg.FindOrganizationOwnedBy(ctx, uuid.New(), "acme")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate name or partition", func(t *testing.T) {
		reg := newTestRegistry(t)
		first, err := reg.CreateAdmin(ctx, "first@acme.io", "s3cret")
		require.NoError(t, err)
		second, err := reg.CreateAdmin(ctx, "second@acme.io", "s3cret")
		require.NoError(t, err)

		_, err = reg.CreateOrganization(ctx, "acme", "org_acme", first.AdminID)
		require.NoError(t, err)

		_, err = reg.CreateOrganization(ctx, "acme", "org_other", second.AdminID)
		require.ErrorIs(t, err, ErrDuplicateName)

		_, err = reg.CreateOrganization(ctx, "ACME", "org_acme", second.AdminID)
		require.ErrorIs(t, err, ErrDuplicateName)
	})

	t.Run("rename", func(t *testing.T) {
		reg := newTestRegistry(t)
		a, err := reg.CreateAdmin(ctx, "a@acme.io", "s3cret")
		require.NoError(t, err)
		b, err := reg.CreateAdmin(ctx, "b@globex.io", "s3cret")
		require.NoError(t, err)

		acme, err := reg.CreateOrganization(ctx, "acme", "org_acme", a.AdminID)
		require.NoError(t, err)
		_, err = reg.CreateOrganization(ctx, "globex", "org_globex", b.AdminID)
		require.NoError(t, err)

		err = reg.RenameOrganization(ctx, acme.OrgID, "globex", "org_globex")
		require.ErrorIs(t, err, ErrDuplicateName)

		require.NoError(t, reg.RenameOrganization(ctx, acme.OrgID, "initech", "org_initech"))

		_, err = reg.FindOrganizationByName(ctx, "acme")
		require.ErrorIs(t, err, ErrNotFound)

		renamed, err := reg.FindOrganizationByID(ctx, acme.OrgID)
		require.NoError(t, err)
		require.Equal(t, "initech", renamed.Name)
		require.Equal(t, "org_initech", renamed.PartitionName)

		err = reg.RenameOrganization(ctx, uuid.New(), "hooli", "org_hooli")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		reg := newTestRegistry(t)
		admin, err := reg.CreateAdmin(ctx, "admin@acme.io", "s3cret")
		require.NoError(t, err)
		org, err := reg.CreateOrganization(ctx, "acme", "org_acme", admin.AdminID)
		require.NoError(t, err)

		require.NoError(t, reg.DeleteOrganization(ctx, org.OrgID))
		require.ErrorIs(t, reg.DeleteOrganization(ctx, org.OrgID), ErrNotFound)

		require.NoError(t, reg.DeleteAdmin(ctx, admin.AdminID))
		require.ErrorIs(t, reg.DeleteAdmin(ctx, admin.AdminID), ErrNotFound)

		orgs, err := reg.ListOrganizations(ctx)
		require.NoError(t, err)
		require.Empty(t, orgs)

		admins, err := reg.ListAdmins(ctx)
		require.NoError(t, err)
		require.Empty(t, admins)
	})
}
