package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfeidau/tenantd/internal/auth"
	"github.com/wolfeidau/tenantd/internal/server"
	"github.com/wolfeidau/tenantd/internal/telemetry"
	"github.com/wolfeidau/tenantd/internal/tenant"
)

type ServeCmd struct {
	Listen          string        `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"TENANTD_LISTEN"`
	ShutdownTimeout time.Duration `help:"how long to wait for in-flight requests on shutdown" default:"30s" env:"TENANTD_SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `help:"per request timeout, must fit a rename of the largest partition" default:"4m" env:"TENANTD_REQUEST_TIMEOUT"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" env:"TENANTD_CORS_ORIGINS"`

	LoginRateLimit  int           `help:"login attempts allowed per client IP per window" default:"10" env:"TENANTD_LOGIN_RATE_LIMIT"`
	LoginRateWindow time.Duration `help:"login rate limit window" default:"1m" env:"TENANTD_LOGIN_RATE_WINDOW"`

	Tracing     bool    `help:"enable tracing and metrics export over OTLP" default:"false" env:"TENANTD_TRACING"`
	SampleRatio float64 `help:"fraction of traces sampled" default:"1" env:"TENANTD_TRACE_SAMPLE_RATIO"`

	Store     StoreFlags     `embed:""`
	Auth      AuthFlags      `embed:""`
	Lifecycle LifecycleFlags `embed:""`
	Sweep     SweepFlags     `embed:"" prefix:"sweep-"`
}

type SweepFlags struct {
	Disabled             bool          `help:"disable the background recovery sweep" default:"false" env:"TENANTD_SWEEP_DISABLED"`
	Interval             time.Duration `help:"interval between recovery passes" default:"1m" env:"TENANTD_SWEEP_INTERVAL"`
	StaleAfter           time.Duration `help:"idle time after which a rename marker is treated as abandoned" default:"5m" env:"TENANTD_SWEEP_STALE_AFTER"`
	OrphanAdminAge       time.Duration `help:"age after which an admin without an organization is removed, 0 disables" default:"15m" env:"TENANTD_SWEEP_ORPHAN_ADMIN_AGE"`
	OrphanPartitionGrace time.Duration `help:"how long an unreferenced partition is observed before it is dropped" default:"15m" env:"TENANTD_SWEEP_ORPHAN_PARTITION_GRACE"`
}

func (c *ServeCmd) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Lifecycle.Validate(); err != nil {
		return err
	}
	if !c.Sweep.Disabled && c.Sweep.StaleAfter < 2*c.Lifecycle.RenameHeartbeat {
		return fmt.Errorf("sweep stale-after %s must be at least twice the rename heartbeat %s",
			c.Sweep.StaleAfter, c.Lifecycle.RenameHeartbeat)
	}
	if c.LoginRateLimit < 1 {
		return errors.New("login rate limit must be at least 1")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("trace sample ratio %v must be within [0, 1]", c.SampleRatio)
	}
	return nil
}

func (c *ServeCmd) Run(globals *Globals) error {
	if err := c.Validate(); err != nil {
		return err
	}

	log := setupLogging(globals)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "tenantd",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	stores, closeStores, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer closeStores()

	reg, err := newRegistry(stores, c.Auth.BcryptCost)
	if err != nil {
		return err
	}

	codec, err := auth.NewJWTCodec([]byte(c.Auth.TokenSecret), c.Auth.TokenIssuer)
	if err != nil {
		return err
	}
	guard := auth.NewGuard(reg, codec, c.Auth.TokenTTL)
	manager := newManager(stores, reg, guard, c.Lifecycle)

	if !c.Sweep.Disabled {
		sweeper := tenant.NewSweeper(ctx, manager, tenant.SweeperConfig{
			Interval:             c.Sweep.Interval,
			StaleAfter:           c.Sweep.StaleAfter,
			OrphanAdminAge:       c.Sweep.OrphanAdminAge,
			OrphanPartitionGrace: c.Sweep.OrphanPartitionGrace,
		})
		defer sweeper.Stop()

		log.Info().Dur("interval", c.Sweep.Interval).Msg("Recovery sweeper started")
	}

	api := server.New(manager, guard, server.Config{
		CORSOrigins:     c.CORSOrigins,
		LoginRateLimit:  c.LoginRateLimit,
		LoginRateWindow: c.LoginRateWindow,
		RequestTimeout:  c.RequestTimeout,
		Tracing:         c.Tracing,
	})
	httpServer := configureHTTPServer(c.Listen, api.Handler(log))

	idleConnsClosed := make(chan struct{})
	go func() {
		defer close(idleConnsClosed)
		<-ctx.Done()

		log.Info().Msg("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}()

	log.Info().Str("addr", c.Listen).Str("store", c.Store.StoreType).Msg("Starting HTTP server")
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	<-idleConnsClosed
	log.Info().Msg("Server stopped")

	return nil
}
