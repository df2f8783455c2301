package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type adminDocument struct {
	AdminID      string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d *adminDocument) model() (*models.Admin, error) {
	id, err := uuid.Parse(d.AdminID)
	if err != nil {
		return nil, err
	}
	return &models.Admin{
		AdminID:      id,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

// AdminStore implements store.AdminStore on the admins collection.
type AdminStore struct {
	coll *mongo.Collection
}

var _ store.AdminStore = (*AdminStore)(nil)

// NewAdminStore creates an admin store in db.
func NewAdminStore(db *mongo.Database) *AdminStore {
	return &AdminStore{coll: db.Collection(adminsCollection)}
}

// Create inserts a new admin. The unique email index rejects duplicates.
func (s *AdminStore) Create(ctx context.Context, admin *models.Admin) error {
	_, err := s.coll.InsertOne(ctx, adminDocument{
		AdminID:      admin.AdminID.String(),
		Email:        admin.Email,
		PasswordHash: admin.PasswordHash,
		CreatedAt:    admin.CreatedAt,
		UpdatedAt:    admin.UpdatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrAdminAlreadyExists
		}
		return mapMongoError("create admin", err)
	}

	log.Debug().Str("admin_id", admin.AdminID.String()).Msg("Created admin")

	return nil
}

// Get retrieves an admin by ID.
func (s *AdminStore) Get(ctx context.Context, adminID uuid.UUID) (*models.Admin, error) {
	return s.findOne(ctx, bson.D{{Key: "_id", Value: adminID.String()}})
}

// GetByEmail retrieves an admin by email.
func (s *AdminStore) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

// Delete deletes an admin by ID.
func (s *AdminStore) Delete(ctx context.Context, adminID uuid.UUID) error {
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: adminID.String()}})
	if err != nil {
		return mapMongoError("delete admin", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrAdminNotFound
	}
	return nil
}

// List returns all admins.
func (s *AdminStore) List(ctx context.Context) ([]*models.Admin, error) {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, mapMongoError("list admins", err)
	}

	var docs []adminDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapMongoError("decode admins", err)
	}

	admins := make([]*models.Admin, 0, len(docs))
	for i := range docs {
		admin, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		admins = append(admins, admin)
	}
	return admins, nil
}

func (s *AdminStore) findOne(ctx context.Context, filter bson.D) (*models.Admin, error) {
	var doc adminDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrAdminNotFound
		}
		return nil, mapMongoError("get admin", err)
	}
	return doc.model()
}

type organizationDocument struct {
	OrgID         string    `bson:"_id"`
	Name          string    `bson:"name"`
	PartitionName string    `bson:"partition_name"`
	AdminID       string    `bson:"admin_id"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (d *organizationDocument) model() (*models.Organization, error) {
	orgID, err := uuid.Parse(d.OrgID)
	if err != nil {
		return nil, err
	}
	adminID, err := uuid.Parse(d.AdminID)
	if err != nil {
		return nil, err
	}
	return &models.Organization{
		OrgID:         orgID,
		Name:          d.Name,
		PartitionName: d.PartitionName,
		AdminID:       adminID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

// OrganizationStore implements store.OrganizationStore on the organizations collection.
// Uniqueness of name, partition and admin is enforced by unique indexes.
type OrganizationStore struct {
	coll *mongo.Collection
}

var _ store.OrganizationStore = (*OrganizationStore)(nil)

// NewOrganizationStore creates an organization store in db.
func NewOrganizationStore(db *mongo.Database) *OrganizationStore {
	return &OrganizationStore{coll: db.Collection(organizationsCollection)}
}

// Create inserts a new organization.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	_, err := s.coll.InsertOne(ctx, organizationDocument{
		OrgID:         org.OrgID.String(),
		Name:          org.Name,
		PartitionName: org.PartitionName,
		AdminID:       org.AdminID.String(),
		CreatedAt:     org.CreatedAt,
		UpdatedAt:     org.UpdatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return mapMongoError("create organization", err)
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	return s.findOne(ctx, bson.D{{Key: "_id", Value: orgID.String()}})
}

// GetByName retrieves an organization by name.
func (s *OrganizationStore) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	return s.findOne(ctx, bson.D{{Key: "name", Value: name}})
}

// GetByPartition retrieves an organization by partition name.
func (s *OrganizationStore) GetByPartition(ctx context.Context, partitionName string) (*models.Organization, error) {
	return s.findOne(ctx, bson.D{{Key: "partition_name", Value: partitionName}})
}

// GetByAdmin retrieves the organization owned by an admin.
func (s *OrganizationStore) GetByAdmin(ctx context.Context, adminID uuid.UUID) (*models.Organization, error) {
	return s.findOne(ctx, bson.D{{Key: "admin_id", Value: adminID.String()}})
}

// Rename updates name and partition name in one single-document write.
func (s *OrganizationStore) Rename(ctx context.Context, orgID uuid.UUID, name, partitionName string) error {
	res, err := s.coll.UpdateByID(ctx, orgID.String(), bson.D{{Key: "$set", Value: bson.D{
		{Key: "name", Value: name},
		{Key: "partition_name", Value: partitionName},
		{Key: "updated_at", Value: time.Now()},
	}}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return mapMongoError("rename organization", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrOrganizationNotFound
	}
	return nil
}

// Delete deletes an organization by ID.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: orgID.String()}})
	if err != nil {
		return mapMongoError("delete organization", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrOrganizationNotFound
	}
	return nil
}

// List returns all organizations.
func (s *OrganizationStore) List(ctx context.Context) ([]*models.Organization, error) {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, mapMongoError("list organizations", err)
	}

	var docs []organizationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapMongoError("decode organizations", err)
	}

	orgs := make([]*models.Organization, 0, len(docs))
	for i := range docs {
		org, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, nil
}

func (s *OrganizationStore) findOne(ctx context.Context, filter bson.D) (*models.Organization, error) {
	var doc organizationDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, mapMongoError("get organization", err)
	}
	return doc.model()
}

type renameDocument struct {
	OrgID        string    `bson:"_id"`
	OldName      string    `bson:"old_name"`
	NewName      string    `bson:"new_name"`
	OldPartition string    `bson:"old_partition"`
	NewPartition string    `bson:"new_partition"`
	State        string    `bson:"state"`
	StartedAt    time.Time `bson:"started_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d *renameDocument) model() (*models.RenameOperation, error) {
	orgID, err := uuid.Parse(d.OrgID)
	if err != nil {
		return nil, err
	}
	return &models.RenameOperation{
		OrgID:        orgID,
		OldName:      d.OldName,
		NewName:      d.NewName,
		OldPartition: d.OldPartition,
		NewPartition: d.NewPartition,
		State:        models.RenameState(d.State),
		StartedAt:    d.StartedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

// RenameStore implements store.RenameStore on the rename_operations collection.
type RenameStore struct {
	coll *mongo.Collection
}

var _ store.RenameStore = (*RenameStore)(nil)

// NewRenameStore creates a rename marker store in db.
func NewRenameStore(db *mongo.Database) *RenameStore {
	return &RenameStore{coll: db.Collection(renamesCollection)}
}

// Begin inserts a marker keyed by organization. The unique new_partition index reserves the destination.
func (s *RenameStore) Begin(ctx context.Context, op *models.RenameOperation) error {
	_, err := s.coll.InsertOne(ctx, renameDocument{
		OrgID:        op.OrgID.String(),
		OldName:      op.OldName,
		NewName:      op.NewName,
		OldPartition: op.OldPartition,
		NewPartition: op.NewPartition,
		State:        string(op.State),
		StartedAt:    op.StartedAt,
		UpdatedAt:    op.UpdatedAt,
	})
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return mapMongoError("begin rename", err)
	}

	// Tell apart a second rename of the same organization from a taken destination.
	if _, getErr := s.Get(ctx, op.OrgID); getErr == nil {
		return store.ErrRenameInProgress
	}
	return store.ErrNameReserved
}

// SetState moves a marker to a new state and refreshes updated_at.
func (s *RenameStore) SetState(ctx context.Context, orgID uuid.UUID, state models.RenameState) error {
	res, err := s.coll.UpdateByID(ctx, orgID.String(), bson.D{{Key: "$set", Value: bson.D{
		{Key: "state", Value: string(state)},
		{Key: "updated_at", Value: time.Now()},
	}}})
	if err != nil {
		return mapMongoError("set rename state", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrRenameNotFound
	}
	return nil
}

// Get returns the marker for an organization.
func (s *RenameStore) Get(ctx context.Context, orgID uuid.UUID) (*models.RenameOperation, error) {
	var doc renameDocument
	if err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: orgID.String()}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrRenameNotFound
		}
		return nil, mapMongoError("get rename", err)
	}
	return doc.model()
}

// IsReserved reports whether partitionName is the destination of an in-progress rename.
func (s *RenameStore) IsReserved(ctx context.Context, partitionName string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "new_partition", Value: partitionName}}, options.Count().SetLimit(1))
	if err != nil {
		return false, mapMongoError("check reservation", err)
	}
	return n > 0, nil
}

// List returns every marker, oldest first.
func (s *RenameStore) List(ctx context.Context) ([]*models.RenameOperation, error) {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}}))
	if err != nil {
		return nil, mapMongoError("list renames", err)
	}

	var docs []renameDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapMongoError("decode renames", err)
	}

	ops := make([]*models.RenameOperation, 0, len(docs))
	for i := range docs {
		op, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// Finish removes the marker. A missing marker is not an error.
func (s *RenameStore) Finish(ctx context.Context, orgID uuid.UUID) error {
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: orgID.String()}}); err != nil {
		return mapMongoError("finish rename", err)
	}
	return nil
}
