package mongodb

import (
	"context"
	"regexp"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type partitionDocument struct {
	ID   string         `bson:"_id"`
	Body map[string]any `bson:"body"`
}

// PartitionStore implements store.PartitionStore with one collection per partition.
// Document IDs are UUIDv7 strings, so sorting by _id follows insertion order.
type PartitionStore struct {
	db *mongo.Database
}

var _ store.PartitionStore = (*PartitionStore)(nil)

// NewPartitionStore creates a partition store in db.
func NewPartitionStore(db *mongo.Database) *PartitionStore {
	return &PartitionStore{db: db}
}

// Create creates the collection if it doesn't exist.
func (s *PartitionStore) Create(ctx context.Context, name string) error {
	if err := s.db.CreateCollection(ctx, name); err != nil {
		if isNamespaceExists(err) {
			return nil
		}
		return mapMongoError("create partition", err)
	}

	log.Debug().Str("partition", name).Msg("Created partition")

	return nil
}

// Drop drops the collection. Dropping a missing collection succeeds.
func (s *PartitionStore) Drop(ctx context.Context, name string) error {
	if err := s.db.Collection(name).Drop(ctx); err != nil {
		return mapMongoError("drop partition", err)
	}

	log.Debug().Str("partition", name).Msg("Dropped partition")

	return nil
}

// Exists reports whether the collection exists.
func (s *PartitionStore) Exists(ctx context.Context, name string) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return false, mapMongoError("check partition", err)
	}
	return len(names) > 0, nil
}

// List returns the collections whose name starts with prefix, sorted.
func (s *PartitionStore) List(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "^" + regexp.QuoteMeta(prefix)}}}}
	names, err := s.db.ListCollectionNames(ctx, filter)
	if err != nil {
		return nil, mapMongoError("list partitions", err)
	}
	slices.Sort(names)
	return names, nil
}

// Insert stores a document. MongoDB creates collections implicitly on insert, so the partition
// is checked first. A drop between the check and the write still recreates the collection; the
// lifecycle manager re-validates every insert against the registry and drops such leftovers.
func (s *PartitionStore) Insert(ctx context.Context, name string, doc *models.Document) error {
	if err := s.mustExist(ctx, name); err != nil {
		return err
	}

	_, err := s.db.Collection(name).InsertOne(ctx, partitionDocument{ID: doc.ID, Body: doc.Body})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDocumentExists
		}
		return mapMongoError("insert document", err)
	}
	return nil
}

// Iterate streams the collection in _id order and calls fn for each document.
func (s *PartitionStore) Iterate(ctx context.Context, name string, fn func(*models.Document) error) error {
	if err := s.mustExist(ctx, name); err != nil {
		return err
	}

	cur, err := s.db.Collection(name).Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return mapMongoError("iterate partition", err)
	}
	defer cur.Close(context.WithoutCancel(ctx))

	for cur.Next(ctx) {
		var pd partitionDocument
		if err := cur.Decode(&pd); err != nil {
			return mapMongoError("decode document", err)
		}
		if err := fn(&models.Document{ID: pd.ID, Body: pd.Body}); err != nil {
			return err
		}
	}

	return mapMongoError("iterate partition", cur.Err())
}

// Count returns the number of documents in the collection.
func (s *PartitionStore) Count(ctx context.Context, name string) (int64, error) {
	if err := s.mustExist(ctx, name); err != nil {
		return 0, err
	}

	n, err := s.db.Collection(name).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, mapMongoError("count partition", err)
	}
	return n, nil
}

func (s *PartitionStore) mustExist(ctx context.Context, name string) error {
	exists, err := s.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrPartitionNotFound
	}
	return nil
}
