package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantd/internal/auth"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/registry"
	"github.com/wolfeidau/tenantd/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultRenameHeartbeat is how often a running rename refreshes its marker so the recovery sweep
// can tell it apart from an abandoned one.
const DefaultRenameHeartbeat = 30 * time.Second

// DefaultPendingCreateWait is how long a create that lost the admin insert waits to learn which
// organization the winning request is creating.
const DefaultPendingCreateWait = 2 * time.Second

// Authorizer resolves the organization an authenticated admin is allowed to mutate.
type Authorizer interface {
	Authorize(ctx context.Context, ac *auth.AuthContext, orgName string) (*models.Organization, error)
}

// Config holds the lifecycle manager's collaborators and policy.
type Config struct {
	Registry   *registry.Registry
	Partitions store.PartitionStore
	Renames    store.RenameStore
	Authorizer Authorizer

	// DeleteAdminWithOrganization removes the owning admin when its organization is deleted.
	DeleteAdminWithOrganization bool

	// RenameHeartbeat defaults to DefaultRenameHeartbeat.
	RenameHeartbeat time.Duration

	// PendingCreateWait bounds how long Create waits for a concurrent create holding the same email
	// to register its organization. Defaults to DefaultPendingCreateWait.
	PendingCreateWait time.Duration
}

// Manager orchestrates create, rename and delete of organizations together with their partitions.
// The store offers no cross-collection transactions, so every operation orders its writes such that
// an interruption leaves state the recovery sweep can repair.
type Manager struct {
	registry    *registry.Registry
	partitions  store.PartitionStore
	renames     store.RenameStore
	authorizer  Authorizer
	deleteAdmin bool
	heartbeat   time.Duration
	createWait  time.Duration
	metrics     *instruments
}

// NewManager creates a lifecycle manager.
func NewManager(cfg Config) *Manager {
	heartbeat := cfg.RenameHeartbeat
	if heartbeat == 0 {
		heartbeat = DefaultRenameHeartbeat
	}

	createWait := cfg.PendingCreateWait
	if createWait == 0 {
		createWait = DefaultPendingCreateWait
	}

	return &Manager{
		registry:    cfg.Registry,
		partitions:  cfg.Partitions,
		renames:     cfg.Renames,
		authorizer:  cfg.Authorizer,
		deleteAdmin: cfg.DeleteAdminWithOrganization,
		heartbeat:   heartbeat,
		createWait:  createWait,
		metrics:     newInstruments(),
	}
}

// CreateResult summarises a newly created organization.
type CreateResult struct {
	OrgID         uuid.UUID
	Name          string
	PartitionName string
	AdminEmail    string
}

// Create provisions an organization, its admin and its partition.
// The admin is written before the organization so an organization never references a missing admin.
func (m *Manager) Create(ctx context.Context, name, email, password string) (res *CreateResult, err error) {
	ctx, span := tracer.Start(ctx, "tenant.Create", trace.WithAttributes(attribute.String("org.name", name)))
	defer func() { m.finish(ctx, span, "create", err) }()

	if err := ValidateName(name); err != nil {
		return nil, err
	}

	if err := m.ensureNameFree(ctx, name); err != nil {
		return nil, err
	}

	admin, err := m.registry.CreateAdmin(ctx, email, password)
	if err != nil {
		if errors.Is(err, registry.ErrDuplicateEmail) {
			return nil, m.classifyDuplicateEmail(ctx, name, email)
		}
		return nil, fmt.Errorf("create admin: %w", err)
	}

	partitionName := PartitionName(name)
	if err := m.partitions.Create(ctx, partitionName); err != nil {
		m.discardAdmin(ctx, admin.AdminID)
		return nil, fmt.Errorf("create partition %s: %w", partitionName, err)
	}

	org, err := m.registry.CreateOrganization(ctx, name, partitionName, admin.AdminID)
	if err != nil {
		m.discardAdmin(ctx, admin.AdminID)
		if errors.Is(err, registry.ErrDuplicateName) {
			// The partition belongs to whoever won the race, leave it alone.
			return nil, ErrOrganizationExists
		}
		return nil, fmt.Errorf("create organization: %w", err)
	}

	// A rename that reserved this partition after the first check now owns it. Rename checks the
	// registry after reserving, so at least one of the two sides always sees the other.
	reserved, err := m.renames.IsReserved(ctx, partitionName)
	if err != nil || reserved {
		if delErr := m.registry.DeleteOrganization(ctx, org.OrgID); delErr != nil {
			log.Error().Err(delErr).Str("org_id", org.OrgID.String()).Msg("Failed to withdraw organization that lost a rename race")
		}
		m.discardAdmin(ctx, admin.AdminID)
		if err != nil {
			return nil, fmt.Errorf("check name reservation: %w", err)
		}
		return nil, ErrOrganizationExists
	}

	// An orphan partition drop may have removed the partition before the row above landed.
	if err := m.partitions.Create(ctx, partitionName); err != nil {
		return nil, fmt.Errorf("ensure partition %s: %w", partitionName, err)
	}

	log.Info().
		Str("org_id", org.OrgID.String()).
		Str("name", org.Name).
		Str("partition", org.PartitionName).
		Msg("Created organization")

	return &CreateResult{
		OrgID:         org.OrgID,
		Name:          org.Name,
		PartitionName: org.PartitionName,
		AdminEmail:    admin.Email,
	}, nil
}

// Get returns the organization with the given name.
func (m *Manager) Get(ctx context.Context, name string) (*models.Organization, error) {
	org, err := m.registry.FindOrganizationByName(ctx, name)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return org, nil
}

// Rename moves an organization to a new name and partition.
//
// Documents are copied, never moved: the source partition stays authoritative until the registry
// points at the destination. A durable marker recorded before the copy lets the recovery sweep
// finish or undo a rename interrupted at any step.
func (m *Manager) Rename(ctx context.Context, ac *auth.AuthContext, oldName, newName string) (res *models.Organization, err error) {
	ctx, span := tracer.Start(ctx, "tenant.Rename", trace.WithAttributes(
		attribute.String("org.old_name", oldName),
		attribute.String("org.new_name", newName),
	))
	defer func() { m.finish(ctx, span, "rename", err) }()

	org, err := m.authorize(ctx, ac, oldName)
	if err != nil {
		return nil, err
	}

	if newName == oldName {
		return org, nil
	}

	if err := ValidateName(newName); err != nil {
		return nil, err
	}

	if err := m.ensureNameAvailable(ctx, org, newName); err != nil {
		return nil, err
	}

	newPartition := PartitionName(newName)
	if newPartition == org.PartitionName {
		// Case only change, the partition is unchanged and there is nothing to migrate.
		return m.renameInPlace(ctx, org, newName)
	}

	now := time.Now()
	op := &models.RenameOperation{
		OrgID:        org.OrgID,
		OldName:      org.Name,
		NewName:      newName,
		OldPartition: org.PartitionName,
		NewPartition: newPartition,
		State:        models.RenameStateCopying,
		StartedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.renames.Begin(ctx, op); err != nil {
		switch {
		case errors.Is(err, store.ErrRenameInProgress):
			return nil, ErrRenameInProgress
		case errors.Is(err, store.ErrNameReserved):
			return nil, ErrNameTaken
		default:
			return nil, fmt.Errorf("record rename marker: %w", err)
		}
	}

	// A create may have claimed the name between the first check and the reservation.
	if err := m.ensureNameAvailable(ctx, org, newName); err != nil {
		if finErr := m.renames.Finish(ctx, op.OrgID); finErr != nil {
			log.Error().Err(finErr).Str("org_id", op.OrgID.String()).Msg("Failed to clear rename marker")
		}
		return nil, err
	}

	log.Info().
		Str("org_id", org.OrgID.String()).
		Str("from", op.OldPartition).
		Str("to", op.NewPartition).
		Msg("Starting partition migration")

	copied, err := m.migrate(ctx, op)
	if err != nil {
		m.rollback(ctx, op)
		return nil, &MigrationError{Source: op.OldPartition, Destination: op.NewPartition, Copied: copied, Err: err}
	}

	if err := m.renames.SetState(ctx, op.OrgID, models.RenameStateCommitting); err != nil {
		m.rollback(ctx, op)
		return nil, &MigrationError{Source: op.OldPartition, Destination: op.NewPartition, Copied: copied, Err: err}
	}

	if err := m.commit(ctx, op); err != nil {
		return nil, err
	}

	// The registry now points at the destination. Dropping the source is cleanup; on failure the
	// marker stays in "committing" and the sweep finishes the job.
	if err := m.partitions.Drop(ctx, op.OldPartition); err != nil {
		log.Error().Err(err).
			Str("org_id", op.OrgID.String()).
			Str("partition", op.OldPartition).
			Msg("Renamed organization but failed to drop source partition, leaving it for recovery")
	} else if err := m.renames.Finish(ctx, op.OrgID); err != nil {
		log.Error().Err(err).Str("org_id", op.OrgID.String()).Msg("Failed to clear rename marker")
	}

	renamed, err := m.registry.FindOrganizationByID(ctx, op.OrgID)
	if err != nil {
		return nil, fmt.Errorf("reload renamed organization: %w", err)
	}

	log.Info().
		Str("org_id", renamed.OrgID.String()).
		Str("name", renamed.Name).
		Int64("documents", copied).
		Msg("Renamed organization")

	return renamed, nil
}

// migrate copies every document of the source partition into a freshly created destination,
// giving each copy a new identity, and verifies nothing was missed.
func (m *Manager) migrate(ctx context.Context, op *models.RenameOperation) (int64, error) {
	// A previous failed attempt may have left a partial copy behind.
	if err := m.partitions.Drop(ctx, op.NewPartition); err != nil {
		return 0, fmt.Errorf("discard stale destination: %w", err)
	}
	if err := m.partitions.Create(ctx, op.NewPartition); err != nil {
		return 0, fmt.Errorf("create destination: %w", err)
	}

	var copied int64
	lastBeat := time.Now()

	err := m.partitions.Iterate(ctx, op.OldPartition, func(doc *models.Document) error {
		fresh := &models.Document{ID: NewDocumentID(), Body: doc.Body}
		if err := m.partitions.Insert(ctx, op.NewPartition, fresh); err != nil {
			return fmt.Errorf("copy document %s: %w", doc.ID, err)
		}
		copied++

		if time.Since(lastBeat) >= m.heartbeat {
			if err := m.renames.SetState(ctx, op.OrgID, models.RenameStateCopying); err != nil {
				return fmt.Errorf("refresh rename marker: %w", err)
			}
			lastBeat = time.Now()
		}
		return nil
	})
	m.metrics.copied.Add(ctx, copied)
	if err != nil {
		return copied, err
	}

	destCount, err := m.partitions.Count(ctx, op.NewPartition)
	if err != nil {
		return copied, fmt.Errorf("count destination: %w", err)
	}
	if destCount != copied {
		return copied, fmt.Errorf("destination holds %d documents, copied %d", destCount, copied)
	}

	srcCount, err := m.partitions.Count(ctx, op.OldPartition)
	if err != nil {
		return copied, fmt.Errorf("count source: %w", err)
	}
	if srcCount != copied {
		return copied, fmt.Errorf("source changed during migration: holds %d documents, copied %d", srcCount, copied)
	}

	return copied, nil
}

// commit switches the registry to the new name. If the write fails and the registry still shows the
// old name, the destination is discarded and the rename fails cleanly.
func (m *Manager) commit(ctx context.Context, op *models.RenameOperation) error {
	err := m.registry.RenameOrganization(ctx, op.OrgID, op.NewName, op.NewPartition)
	if err == nil {
		return nil
	}

	if errors.Is(err, registry.ErrDuplicateName) {
		// The destination may now belong to the organization that took the name, so it is left alone.
		log.Error().Str("org_id", op.OrgID.String()).Str("partition", op.NewPartition).
			Msg("Destination name claimed during rename")
		if finErr := m.renames.Finish(ctx, op.OrgID); finErr != nil {
			log.Error().Err(finErr).Str("org_id", op.OrgID.String()).Msg("Failed to clear rename marker")
		}
		return ErrNameTaken
	}

	// The write may have landed even though it reported an error.
	current, readErr := m.registry.FindOrganizationByID(ctx, op.OrgID)
	if readErr != nil {
		log.Error().Err(readErr).
			Str("org_id", op.OrgID.String()).
			Msg("Cannot tell whether rename committed, leaving it for recovery")
		return &MigrationError{Source: op.OldPartition, Destination: op.NewPartition, Err: err}
	}

	if current.Name == op.NewName && current.PartitionName == op.NewPartition {
		log.Warn().Err(err).Str("org_id", op.OrgID.String()).Msg("Registry reported an error but the rename committed")
		return nil
	}

	m.rollback(ctx, op)
	return &MigrationError{Source: op.OldPartition, Destination: op.NewPartition, Err: err}
}

// rollback discards the destination partition and clears the marker.
// The source partition and registry are untouched. It runs even when the caller has gone away.
func (m *Manager) rollback(ctx context.Context, op *models.RenameOperation) {
	ctx = context.WithoutCancel(ctx)
	if err := m.partitions.Drop(ctx, op.NewPartition); err != nil {
		log.Error().Err(err).Str("partition", op.NewPartition).Msg("Failed to drop destination during rollback")
		m.markFailed(ctx, op)
		return
	}
	if err := m.renames.Finish(ctx, op.OrgID); err != nil {
		log.Error().Err(err).Str("org_id", op.OrgID.String()).Msg("Failed to clear rename marker during rollback")
	}
}

func (m *Manager) markFailed(ctx context.Context, op *models.RenameOperation) {
	if err := m.renames.SetState(ctx, op.OrgID, models.RenameStateFailed); err != nil {
		log.Error().Err(err).Str("org_id", op.OrgID.String()).Msg("Failed to mark rename as failed")
	}
}

func (m *Manager) renameInPlace(ctx context.Context, org *models.Organization, newName string) (*models.Organization, error) {
	if err := m.registry.RenameOrganization(ctx, org.OrgID, newName, org.PartitionName); err != nil {
		if errors.Is(err, registry.ErrDuplicateName) {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("rename organization: %w", err)
	}

	org.Name = newName
	return org, nil
}

// Delete removes an organization, its partition and, by policy, its admin.
// The partition goes first: a crash afterwards leaves a registry entry without a partition, which the
// sweep detects, rather than a partition nothing refers to.
func (m *Manager) Delete(ctx context.Context, ac *auth.AuthContext, name string) (err error) {
	ctx, span := tracer.Start(ctx, "tenant.Delete", trace.WithAttributes(attribute.String("org.name", name)))
	defer func() { m.finish(ctx, span, "delete", err) }()

	org, err := m.authorize(ctx, ac, name)
	if err != nil {
		return err
	}

	if err := m.ensureNoRename(ctx, org.OrgID); err != nil {
		return err
	}

	if err := m.partitions.Drop(ctx, org.PartitionName); err != nil {
		return fmt.Errorf("drop partition %s: %w", org.PartitionName, err)
	}

	if err := m.registry.DeleteOrganization(ctx, org.OrgID); err != nil {
		return mapNotFound(err)
	}

	// An insert that passed its checks before the first drop may have recreated the partition on
	// stores that create collections on write. Any insert after this drop sees the row gone.
	if err := m.partitions.Drop(ctx, org.PartitionName); err != nil {
		log.Error().Err(err).
			Str("partition", org.PartitionName).
			Msg("Deleted organization but failed to drop recreated partition, leaving it for recovery")
	}

	if m.deleteAdmin {
		if err := m.registry.DeleteAdmin(ctx, org.AdminID); err != nil && !errors.Is(err, registry.ErrNotFound) {
			log.Error().Err(err).
				Str("admin_id", org.AdminID.String()).
				Msg("Deleted organization but failed to delete its admin, leaving it for recovery")
		}
	}

	log.Info().
		Str("org_id", org.OrgID.String()).
		Str("name", org.Name).
		Msg("Deleted organization")

	return nil
}

// InsertDocument stores a document in the partition of the caller's organization.
func (m *Manager) InsertDocument(ctx context.Context, ac *auth.AuthContext, body map[string]any) (string, error) {
	org, err := m.ownOrganization(ctx, ac)
	if err != nil {
		return "", err
	}

	// Writes during a rename could land after the copy has passed them.
	if err := m.ensureNoRename(ctx, org.OrgID); err != nil {
		return "", err
	}

	doc := &models.Document{ID: NewDocumentID(), Body: body}
	if err := m.partitions.Insert(ctx, org.PartitionName, doc); err != nil {
		if errors.Is(err, store.ErrPartitionNotFound) {
			if confirmErr := m.confirmInsert(ctx, org); confirmErr != nil {
				return "", confirmErr
			}
		}
		return "", fmt.Errorf("insert document: %w", err)
	}

	if err := m.confirmInsert(ctx, org); err != nil {
		return "", err
	}

	return doc.ID, nil
}

// confirmInsert checks that no delete or rename ran between the checks in InsertDocument and its
// write. A write that raced one of them is reported as failed, so the caller never gets an id for
// a document that may be gone. A partition the write recreated is dropped again.
func (m *Manager) confirmInsert(ctx context.Context, org *models.Organization) error {
	current, err := m.registry.FindOrganizationByID(ctx, org.OrgID)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		m.dropStalePartition(ctx, org.PartitionName)
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("confirm insert: %w", err)
	case current.PartitionName != org.PartitionName:
		m.dropStalePartition(ctx, org.PartitionName)
		return ErrRenameInProgress
	}

	if err := m.ensureNoRename(ctx, org.OrgID); err != nil {
		return err
	}

	exists, err := m.partitions.Exists(ctx, org.PartitionName)
	if err != nil {
		return fmt.Errorf("confirm insert: %w", err)
	}
	if !exists {
		// Deleted after the registry read above.
		return ErrNotFound
	}
	return nil
}

// dropStalePartition drops a partition a late write recreated after its organization moved away or
// was deleted. A partition that is registered or reserved by a rename is left alone.
func (m *Manager) dropStalePartition(ctx context.Context, name string) {
	if _, err := m.registry.FindOrganizationByPartition(ctx, name); !errors.Is(err, registry.ErrNotFound) {
		return
	}
	if reserved, err := m.renames.IsReserved(ctx, name); err != nil || reserved {
		return
	}
	if err := m.partitions.Drop(ctx, name); err != nil {
		log.Warn().Err(err).Str("partition", name).Msg("Failed to drop partition recreated by a late insert")
		return
	}
	log.Info().Str("partition", name).Msg("Dropped partition recreated by a late insert")
}

// ListDocuments returns up to limit documents from the caller's partition.
func (m *Manager) ListDocuments(ctx context.Context, ac *auth.AuthContext, limit int) ([]*models.Document, error) {
	org, err := m.ownOrganization(ctx, ac)
	if err != nil {
		return nil, err
	}

	errLimit := errors.New("limit reached")
	docs := []*models.Document{}
	err = m.partitions.Iterate(ctx, org.PartitionName, func(doc *models.Document) error {
		if limit > 0 && len(docs) >= limit {
			return errLimit
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	return docs, nil
}

// NewDocumentID returns a fresh partition scoped document identity.
func NewDocumentID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (m *Manager) authorize(ctx context.Context, ac *auth.AuthContext, name string) (*models.Organization, error) {
	org, err := m.authorizer.Authorize(ctx, ac, name)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return org, nil
}

func (m *Manager) ownOrganization(ctx context.Context, ac *auth.AuthContext) (*models.Organization, error) {
	if ac == nil {
		return nil, auth.ErrUnauthorized
	}
	org, err := m.registry.FindOrganizationByAdmin(ctx, ac.AdminID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return org, nil
}

// ensureNameFree fails with ErrOrganizationExists when name is in use or reserved by a rename.
func (m *Manager) ensureNameFree(ctx context.Context, name string) error {
	_, err := m.registry.FindOrganizationByName(ctx, name)
	switch {
	case err == nil:
		return ErrOrganizationExists
	case !errors.Is(err, registry.ErrNotFound):
		return fmt.Errorf("check name: %w", err)
	}

	reserved, err := m.renames.IsReserved(ctx, PartitionName(name))
	if err != nil {
		return fmt.Errorf("check name reservation: %w", err)
	}
	if reserved {
		return ErrOrganizationExists
	}

	return nil
}

// ensureNameAvailable fails with ErrNameTaken when newName or its partition belongs to another organization.
func (m *Manager) ensureNameAvailable(ctx context.Context, org *models.Organization, newName string) error {
	existing, err := m.registry.FindOrganizationByName(ctx, newName)
	switch {
	case err == nil && existing.OrgID != org.OrgID:
		return ErrNameTaken
	case err != nil && !errors.Is(err, registry.ErrNotFound):
		return fmt.Errorf("check new name: %w", err)
	}

	// Names differing only in case share a partition.
	existing, err = m.registry.FindOrganizationByPartition(ctx, PartitionName(newName))
	switch {
	case err == nil && existing.OrgID != org.OrgID:
		return ErrNameTaken
	case err != nil && !errors.Is(err, registry.ErrNotFound):
		return fmt.Errorf("check new partition: %w", err)
	}

	return nil
}

func (m *Manager) ensureNoRename(ctx context.Context, orgID uuid.UUID) error {
	_, err := m.renames.Get(ctx, orgID)
	switch {
	case err == nil:
		return ErrRenameInProgress
	case errors.Is(err, store.ErrRenameNotFound):
		return nil
	default:
		return fmt.Errorf("check rename marker: %w", err)
	}
}

// discardAdmin removes an admin created for a create that did not complete.
// Failure leaves an orphaned admin for the recovery sweep.
func (m *Manager) discardAdmin(ctx context.Context, adminID uuid.UUID) {
	if err := m.registry.DeleteAdmin(ctx, adminID); err != nil && !errors.Is(err, registry.ErrNotFound) {
		log.Error().Err(err).Str("admin_id", adminID.String()).Msg("Failed to discard admin of incomplete create")
	}
}

var errCreatePending = errors.New("admin has no organization yet")

// classifyDuplicateEmail decides whether a create that hit an existing email raced another create of
// the same organization. The other request may still be between its admin and organization writes,
// so the owner's organization is polled for a bounded time.
func (m *Manager) classifyDuplicateEmail(ctx context.Context, name, email string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	bo.Reset()

	owned, err := backoff.Retry(ctx, func() (*models.Organization, error) {
		admin, err := m.registry.FindAdminByEmail(ctx, email)
		if errors.Is(err, registry.ErrNotFound) {
			// The other request gave up and discarded its admin.
			return nil, nil
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		org, err := m.registry.FindOrganizationByAdmin(ctx, admin.AdminID)
		if errors.Is(err, registry.ErrNotFound) {
			return nil, errCreatePending
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return org, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(m.createWait))

	switch {
	case errors.Is(err, errCreatePending):
		// Still no organization: an orphaned admin or a create that stalled. Neither owns name.
	case err != nil:
		return fmt.Errorf("check email owner: %w", err)
	case owned != nil && owned.PartitionName == PartitionName(name):
		return ErrOrganizationExists
	}

	if nameErr := m.ensureNameFree(ctx, name); nameErr != nil {
		return nameErr
	}
	return ErrEmailTaken
}

func mapNotFound(err error) error {
	if errors.Is(err, registry.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
