package tenant

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	valid := []string{"acme", "Acme-Corp", "a", "9lives", "team_42", strings.Repeat("x", MaxNameLength)}
	for _, name := range valid {
		require.NoError(t, ValidateName(name), name)
	}

	invalid := []string{"", "_acme", "-acme", "acme corp", "acme.io", "acme/x", "ünï", strings.Repeat("x", MaxNameLength+1)}
	for _, name := range invalid {
		require.ErrorIs(t, ValidateName(name), ErrInvalidName, name)
	}
}

func TestPartitionName(t *testing.T) {
	require.Equal(t, "org_acme", PartitionName("acme"))
	require.Equal(t, "org_acme", PartitionName("ACME"))
	require.Equal(t, "org_acme-corp", PartitionName("Acme-Corp"))
	require.LessOrEqual(t, len(PartitionName(strings.Repeat("x", MaxNameLength))), 63)
}
