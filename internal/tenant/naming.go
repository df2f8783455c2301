package tenant

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wolfeidau/tenantd/internal/models"
)

// MaxNameLength keeps partition names within the 63 byte identifier limit of postgres.
const MaxNameLength = 63 - len(models.PartitionPrefix)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidateName checks that name can be turned into a partition name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidName, MaxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: name may only contain letters, digits, '-' and '_' and must start with a letter or digit", ErrInvalidName)
	}
	return nil
}

// PartitionName derives the partition name of an organization.
// Names differing only by case map to the same partition; the registry rejects the second one.
func PartitionName(name string) string {
	return models.PartitionPrefix + strings.ToLower(name)
}
