package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/registry"
)

// RecoverOptions controls which repairs a recovery pass performs.
type RecoverOptions struct {
	// StaleAfter is how long a rename marker must be idle before it is treated as abandoned.
	StaleAfter time.Duration

	// OrphanAdminAge is how old an admin without an organization must be before it is deleted.
	// Zero disables admin cleanup.
	OrphanAdminAge time.Duration

	// DropOrphanPartitions drops unreferenced partitions immediately instead of leaving them to the
	// sweeper's grace period. A create that registers the partition during the drop gets it back
	// empty.
	DropOrphanPartitions bool
}

// RecoverReport lists what a recovery pass found and repaired.
type RecoverReport struct {
	RolledForward     []string `json:"rolled_forward"`     // organizations whose rename was completed
	RolledBack        []string `json:"rolled_back"`        // organizations whose rename was undone
	InFlight          int      `json:"in_flight"`          // rename markers too fresh to touch
	DeletesCompleted  []string `json:"deletes_completed"`  // organizations whose partition was already gone
	AdminsRemoved     []string `json:"admins_removed"`     // orphaned admin IDs deleted
	OrphanPartitions  []string `json:"orphan_partitions"`  // unreferenced partitions found
	PartitionsDropped []string `json:"partitions_dropped"` // unreferenced partitions dropped
}

// Recover runs one consistency pass over markers, registry and partitions, restoring the invariants
// after crashes or failed cleanups. Repairs are idempotent so concurrent or repeated passes are safe.
func (m *Manager) Recover(ctx context.Context, opts RecoverOptions) (report *RecoverReport, err error) {
	ctx, span := tracer.Start(ctx, "tenant.Recover")
	defer func() { m.finish(ctx, span, "recover", err) }()

	report = &RecoverReport{}

	markers, err := m.renames.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rename markers: %w", err)
	}

	cutoff := time.Now().Add(-opts.StaleAfter)
	renaming := make(map[string]bool) // partitions and org IDs involved in live markers

	var errs []error
	for _, op := range markers {
		if !op.IsStale(cutoff) {
			report.InFlight++
			renaming[op.OrgID.String()] = true
			renaming[op.OldPartition] = true
			renaming[op.NewPartition] = true
			continue
		}
		if err := m.recoverRename(ctx, op, report); err != nil {
			errs = append(errs, err)
			renaming[op.OrgID.String()] = true
			renaming[op.OldPartition] = true
			renaming[op.NewPartition] = true
		}
	}

	orgs, err := m.registry.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}

	referenced := make(map[string]bool, len(orgs))
	owners := make(map[string]bool, len(orgs))
	for _, org := range orgs {
		if renaming[org.OrgID.String()] {
			referenced[org.PartitionName] = true
			owners[org.AdminID.String()] = true
			continue
		}

		exists, err := m.partitions.Exists(ctx, org.PartitionName)
		if err != nil {
			errs = append(errs, fmt.Errorf("check partition %s: %w", org.PartitionName, err))
			referenced[org.PartitionName] = true
			owners[org.AdminID.String()] = true
			continue
		}
		if exists {
			referenced[org.PartitionName] = true
			owners[org.AdminID.String()] = true
			continue
		}

		// Only an interrupted delete leaves a registry entry without its partition, but a rename that
		// committed after the list above looks the same from the stale row.
		current, err := m.confirmPartitionMissing(ctx, org)
		if err != nil {
			errs = append(errs, err)
		}
		if current != nil {
			referenced[current.PartitionName] = true
			owners[current.AdminID.String()] = true
			continue
		}
		if err != nil {
			continue
		}

		if err := m.completeDelete(ctx, org); err != nil {
			errs = append(errs, err)
			continue
		}
		report.DeletesCompleted = append(report.DeletesCompleted, org.Name)
	}

	if opts.OrphanAdminAge > 0 {
		if err := m.removeOrphanAdmins(ctx, owners, time.Now().Add(-opts.OrphanAdminAge), report); err != nil {
			errs = append(errs, err)
		}
	}

	partitions, err := m.partitions.List(ctx, models.PartitionPrefix)
	if err != nil {
		errs = append(errs, fmt.Errorf("list partitions: %w", err))
		return report, errors.Join(errs...)
	}

	for _, name := range partitions {
		if referenced[name] || renaming[name] {
			continue
		}
		report.OrphanPartitions = append(report.OrphanPartitions, name)

		if opts.DropOrphanPartitions {
			dropped, err := m.DropOrphanPartition(ctx, name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if dropped {
				report.PartitionsDropped = append(report.PartitionsDropped, name)
			}
		}
	}

	return report, errors.Join(errs...)
}

// recoverRename finishes or undoes an abandoned rename depending on whether the registry write landed.
func (m *Manager) recoverRename(ctx context.Context, op *models.RenameOperation, report *RecoverReport) error {
	logger := log.With().
		Str("org_id", op.OrgID.String()).
		Str("from", op.OldPartition).
		Str("to", op.NewPartition).
		Str("state", string(op.State)).
		Logger()

	org, err := m.registry.FindOrganizationByID(ctx, op.OrgID)
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("load organization %s: %w", op.OrgID, err)
	}

	if org != nil && org.Name == op.NewName && org.PartitionName == op.NewPartition {
		// Registry already points at the destination: finish by dropping the source.
		if err := m.partitions.Drop(ctx, op.OldPartition); err != nil {
			return fmt.Errorf("drop source %s: %w", op.OldPartition, err)
		}
		if err := m.renames.Finish(ctx, op.OrgID); err != nil {
			return fmt.Errorf("clear rename marker: %w", err)
		}
		logger.Info().Msg("Recovered rename by rolling forward")
		m.metrics.repaired(ctx, "rename_roll_forward")
		report.RolledForward = append(report.RolledForward, op.NewName)
		return nil
	}

	// Registry still shows the old name (or the organization is gone): the source is
	// authoritative and the destination is a partial copy.
	if err := m.partitions.Drop(ctx, op.NewPartition); err != nil {
		return fmt.Errorf("drop destination %s: %w", op.NewPartition, err)
	}
	if err := m.renames.Finish(ctx, op.OrgID); err != nil {
		return fmt.Errorf("clear rename marker: %w", err)
	}
	logger.Info().Msg("Recovered rename by rolling back")
	m.metrics.repaired(ctx, "rename_roll_back")
	report.RolledBack = append(report.RolledBack, op.OldName)
	return nil
}

// confirmPartitionMissing re-reads org and returns it when it is still live: renamed since it was
// listed, renaming now, or its partition exists after all. It returns nil, nil only when the
// organization still has the listed partition name, no marker and no partition.
func (m *Manager) confirmPartitionMissing(ctx context.Context, listed *models.Organization) (*models.Organization, error) {
	current, err := m.registry.FindOrganizationByID(ctx, listed.OrgID)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return listed, fmt.Errorf("reload organization %s: %w", listed.OrgID, err)
	}
	if current.PartitionName != listed.PartitionName {
		return current, nil
	}

	if err := m.ensureNoRename(ctx, current.OrgID); err != nil {
		if errors.Is(err, ErrRenameInProgress) {
			return current, nil
		}
		return current, err
	}

	exists, err := m.partitions.Exists(ctx, current.PartitionName)
	if err != nil {
		return current, fmt.Errorf("check partition %s: %w", current.PartitionName, err)
	}
	if exists {
		return current, nil
	}

	// A rename that began and committed during the checks above changes the row again.
	again, err := m.registry.FindOrganizationByID(ctx, listed.OrgID)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return nil, nil
	case err != nil:
		return current, fmt.Errorf("reload organization %s: %w", listed.OrgID, err)
	case again.PartitionName != listed.PartitionName || !again.UpdatedAt.Equal(current.UpdatedAt):
		return again, nil
	}
	return nil, nil
}

func (m *Manager) completeDelete(ctx context.Context, org *models.Organization) error {
	if err := m.registry.DeleteOrganization(ctx, org.OrgID); err != nil && !errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("delete organization %s: %w", org.OrgID, err)
	}
	if m.deleteAdmin {
		if err := m.registry.DeleteAdmin(ctx, org.AdminID); err != nil && !errors.Is(err, registry.ErrNotFound) {
			return fmt.Errorf("delete admin %s: %w", org.AdminID, err)
		}
	}

	log.Info().
		Str("org_id", org.OrgID.String()).
		Str("partition", org.PartitionName).
		Msg("Completed interrupted delete of organization without partition")
	m.metrics.repaired(ctx, "complete_delete")
	return nil
}

func (m *Manager) removeOrphanAdmins(ctx context.Context, owners map[string]bool, cutoff time.Time, report *RecoverReport) error {
	admins, err := m.registry.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}

	var errs []error
	for _, admin := range admins {
		if owners[admin.AdminID.String()] || !admin.CreatedAt.Before(cutoff) {
			continue
		}

		// The organization list was read earlier; re-check before deleting.
		if _, err := m.registry.FindOrganizationByAdmin(ctx, admin.AdminID); err == nil {
			continue
		} else if !errors.Is(err, registry.ErrNotFound) {
			errs = append(errs, err)
			continue
		}

		if err := m.registry.DeleteAdmin(ctx, admin.AdminID); err != nil && !errors.Is(err, registry.ErrNotFound) {
			errs = append(errs, err)
			continue
		}

		log.Info().Str("admin_id", admin.AdminID.String()).Msg("Removed orphaned admin")
		m.metrics.repaired(ctx, "orphan_admin")
		report.AdminsRemoved = append(report.AdminsRemoved, admin.AdminID.String())
	}

	return errors.Join(errs...)
}

// DropOrphanPartition drops a partition after re-checking that no organization or rename refers to it.
// Returns false if the partition turned out to be referenced.
func (m *Manager) DropOrphanPartition(ctx context.Context, name string) (bool, error) {
	orgs, err := m.registry.ListOrganizations(ctx)
	if err != nil {
		return false, fmt.Errorf("list organizations: %w", err)
	}
	for _, org := range orgs {
		if org.PartitionName == name {
			return false, nil
		}
	}

	markers, err := m.renames.List(ctx)
	if err != nil {
		return false, fmt.Errorf("list rename markers: %w", err)
	}
	for _, op := range markers {
		if op.OldPartition == name || op.NewPartition == name {
			return false, nil
		}
	}

	if err := m.partitions.Drop(ctx, name); err != nil {
		return false, fmt.Errorf("drop orphan partition %s: %w", name, err)
	}

	// Create writes the partition before the organization row. If that row landed while the
	// checks above ran, give the organization its partition back. Create also re-ensures the
	// partition after its row, so one of the two sides always restores it.
	if _, err := m.registry.FindOrganizationByPartition(ctx, name); err == nil {
		if err := m.partitions.Create(ctx, name); err != nil {
			return false, fmt.Errorf("restore partition %s: %w", name, err)
		}
		log.Warn().Str("partition", name).Msg("Orphaned partition was claimed by a create during the drop, restored it")
		return false, nil
	} else if !errors.Is(err, registry.ErrNotFound) {
		return false, fmt.Errorf("recheck partition %s: %w", name, err)
	}

	log.Info().Str("partition", name).Msg("Dropped orphaned partition")
	m.metrics.repaired(ctx, "orphan_partition")
	return true, nil
}
