package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantd/internal/auth"
	"github.com/wolfeidau/tenantd/internal/credential"
	"github.com/wolfeidau/tenantd/internal/logger"
	"github.com/wolfeidau/tenantd/internal/registry"
	"github.com/wolfeidau/tenantd/internal/store"
	memorystore "github.com/wolfeidau/tenantd/internal/store/memory"
	mongostore "github.com/wolfeidau/tenantd/internal/store/mongodb"
	postgresstore "github.com/wolfeidau/tenantd/internal/store/postgres"
	"github.com/wolfeidau/tenantd/internal/tenant"
)

type Globals struct {
	Debug   bool
	Version string
}

// setupLogging installs the process wide logger and returns it.
func setupLogging(globals *Globals) zerolog.Logger {
	l := logger.Setup(globals.Debug)
	log.Logger = l
	zerolog.DefaultContextLogger = &l
	return l
}

type StoreFlags struct {
	StoreType string        `help:"store type (memory, postgres or mongo)" default:"memory" env:"TENANTD_STORE_TYPE" enum:"memory,postgres,mongo"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
	Mongo     MongoFlags    `embed:"" prefix:"mongo-"`
}

func (s *StoreFlags) Validate() error {
	switch s.StoreType {
	case "postgres":
		return s.Postgres.Validate()
	case "mongo":
		return s.Mongo.Validate()
	}
	return nil
}

type PostgresFlags struct {
	ConnString      string        `help:"PostgreSQL connection string" env:"TENANTD_POSTGRES_CONNECTION_STRING"`
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20" env:"TENANTD_POSTGRES_MAX_CONNS"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2" env:"TENANTD_POSTGRES_MIN_CONNS"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h" env:"TENANTD_POSTGRES_MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m" env:"TENANTD_POSTGRES_MAX_CONN_IDLE_TIME"`
	AutoMigrate     bool          `help:"run database migrations on startup" default:"false" env:"TENANTD_POSTGRES_AUTO_MIGRATE"`
}

func (p *PostgresFlags) Validate() error {
	if p.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or TENANTD_POSTGRES_CONNECTION_STRING)")
	}
	if p.MinConns > p.MaxConns {
		return fmt.Errorf("postgres min conns %d exceeds max conns %d", p.MinConns, p.MaxConns)
	}
	return nil
}

type MongoFlags struct {
	URI      string `help:"MongoDB connection URI" env:"TENANTD_MONGO_URI"`
	Database string `help:"MongoDB database holding the registry and partitions" default:"tenantd" env:"TENANTD_MONGO_DATABASE"`
}

func (m *MongoFlags) Validate() error {
	if m.URI == "" {
		return errors.New("MongoDB URI is required (--mongo-uri or TENANTD_MONGO_URI)")
	}
	if m.Database == "" {
		return errors.New("MongoDB database is required (--mongo-database or TENANTD_MONGO_DATABASE)")
	}
	return nil
}

// open connects the configured backend. The returned close function releases its connections.
func (s *StoreFlags) open(ctx context.Context) (store.Stores, func(), error) {
	switch s.StoreType {
	case "postgres":
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      s.Postgres.ConnString,
			MaxConns:        s.Postgres.MaxConns,
			MinConns:        s.Postgres.MinConns,
			MaxConnLifetime: s.Postgres.MaxConnLifetime,
			MaxConnIdleTime: s.Postgres.MaxConnIdleTime,
			AutoMigrate:     s.Postgres.AutoMigrate,
		})
		if err != nil {
			return store.Stores{}, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		log.Info().Msg("Using PostgreSQL stores with shared connection pool")
		return postgresstore.NewStores(pool), pool.Close, nil

	case "mongo":
		client, db, err := mongostore.Connect(ctx, &mongostore.Config{
			URI:      s.Mongo.URI,
			Database: s.Mongo.Database,
		})
		if err != nil {
			return store.Stores{}, nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				log.Error().Err(err).Msg("Failed to disconnect from MongoDB")
			}
		}
		log.Info().Str("database", s.Mongo.Database).Msg("Using MongoDB stores")
		return mongostore.NewStores(db), closeFn, nil

	default:
		log.Warn().Msg("Using in-memory stores, data is lost on exit")
		return memorystore.NewStores(), func() {}, nil
	}
}

type AuthFlags struct {
	TokenSecret string        `help:"HMAC secret used to sign access tokens (at least 32 bytes)" env:"TENANTD_TOKEN_SECRET"`
	TokenIssuer string        `help:"issuer stamped on access tokens" default:"tenantd" env:"TENANTD_TOKEN_ISSUER"`
	TokenTTL    time.Duration `help:"access token lifetime" default:"60m" env:"TENANTD_TOKEN_TTL"`
	BcryptCost  int           `help:"bcrypt cost for password digests, 0 uses the library default" default:"0" env:"TENANTD_BCRYPT_COST"`
}

func (a *AuthFlags) Validate() error {
	if len(a.TokenSecret) < auth.MinSecretLength {
		return fmt.Errorf("token secret must be at least %d bytes (--token-secret or TENANTD_TOKEN_SECRET)", auth.MinSecretLength)
	}
	if a.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	return nil
}

type LifecycleFlags struct {
	DeleteAdmin     bool          `help:"delete the owning admin together with its organization" default:"true" negatable:"" env:"TENANTD_DELETE_ADMIN_WITH_ORGANIZATION"`
	RenameHeartbeat time.Duration `help:"how often a running rename refreshes its marker" default:"30s" env:"TENANTD_RENAME_HEARTBEAT"`
}

func (l *LifecycleFlags) Validate() error {
	if l.RenameHeartbeat <= 0 {
		return errors.New("rename heartbeat must be positive")
	}
	return nil
}

// newRegistry builds the registry over stores with the configured password hasher.
func newRegistry(stores store.Stores, bcryptCost int) (*registry.Registry, error) {
	hasher, err := credential.NewBcryptHasher(bcryptCost)
	if err != nil {
		return nil, err
	}
	return registry.New(stores.Admins, stores.Organizations, hasher), nil
}

func newManager(stores store.Stores, reg *registry.Registry, authorizer tenant.Authorizer, lifecycle LifecycleFlags) *tenant.Manager {
	return tenant.NewManager(tenant.Config{
		Registry:                    reg,
		Partitions:                  stores.Partitions,
		Renames:                     stores.Renames,
		Authorizer:                  authorizer,
		DeleteAdminWithOrganization: lifecycle.DeleteAdmin,
		RenameHeartbeat:             lifecycle.RenameHeartbeat,
	})
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      5 * time.Minute, // renames of large partitions run inside the request
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
