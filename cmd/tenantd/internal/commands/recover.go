package commands

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/wolfeidau/tenantd/internal/tenant"
)

// RecoverCmd runs one recovery pass against the configured store and prints what it repaired.
type RecoverCmd struct {
	StaleAfter           time.Duration `help:"idle time after which a rename marker is treated as abandoned" default:"5m" env:"TENANTD_SWEEP_STALE_AFTER"`
	OrphanAdminAge       time.Duration `help:"age after which an admin without an organization is removed, 0 disables" default:"15m" env:"TENANTD_SWEEP_ORPHAN_ADMIN_AGE"`
	DropOrphanPartitions bool          `help:"drop unreferenced partitions immediately; only safe while no server is running" default:"false"`
	Timeout              time.Duration `help:"overall time limit for the pass" default:"10m"`
	BcryptCost           int           `help:"bcrypt cost for password digests, 0 uses the library default" default:"0" env:"TENANTD_BCRYPT_COST"`

	Store     StoreFlags     `embed:""`
	Lifecycle LifecycleFlags `embed:""`
}

func (c *RecoverCmd) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.Store.StoreType == "memory" {
		return errors.New("recover needs a persistent store (--store-type postgres or mongo)")
	}
	if c.StaleAfter <= 0 {
		return errors.New("stale-after must be positive")
	}
	return nil
}

func (c *RecoverCmd) Run(ctx context.Context, globals *Globals) error {
	if err := c.Validate(); err != nil {
		return err
	}

	log := setupLogging(globals)

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	stores, closeStores, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer closeStores()

	reg, err := newRegistry(stores, c.BcryptCost)
	if err != nil {
		return err
	}

	// Recovery never authorizes a caller, so no guard is needed.
	manager := newManager(stores, reg, nil, c.Lifecycle)

	report, err := manager.Recover(ctx, tenant.RecoverOptions{
		StaleAfter:           c.StaleAfter,
		OrphanAdminAge:       c.OrphanAdminAge,
		DropOrphanPartitions: c.DropOrphanPartitions,
	})
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			log.Error().Err(encErr).Msg("Failed to write report")
		}
	}
	if err != nil {
		return err
	}

	log.Info().
		Int("in_flight", report.InFlight).
		Int("orphan_partitions", len(report.OrphanPartitions)).
		Msg("Recovery pass complete")

	return nil
}
