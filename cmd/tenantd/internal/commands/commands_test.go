package commands

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"
)

type testCLI struct {
	Debug   bool
	Serve   ServeCmd   `cmd:""`
	Recover RecoverCmd `cmd:""`
}

func parse(t *testing.T, args ...string) *testCLI {
	t.Helper()

	var cli testCLI
	parser, err := kong.New(&cli, kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)

	_, err = parser.Parse(args)
	require.NoError(t, err)
	return &cli
}

func TestServeCmd_Defaults(t *testing.T) {
	cli := parse(t, "serve", "--token-secret", strings.Repeat("s", 32))

	require.Equal(t, "0.0.0.0:8080", cli.Serve.Listen)
	require.Equal(t, "memory", cli.Serve.Store.StoreType)
	require.Equal(t, 60*time.Minute, cli.Serve.Auth.TokenTTL)
	require.True(t, cli.Serve.Lifecycle.DeleteAdmin)
	require.Equal(t, 30*time.Second, cli.Serve.Lifecycle.RenameHeartbeat)
	require.Equal(t, time.Minute, cli.Serve.Sweep.Interval)
	require.Equal(t, 10, cli.Serve.LoginRateLimit)
}

func TestServeCmd_NoDeleteAdmin(t *testing.T) {
	cli := parse(t, "serve", "--token-secret", strings.Repeat("s", 32), "--no-delete-admin")
	require.False(t, cli.Serve.Lifecycle.DeleteAdmin)
}

func TestServeCmd_Validate(t *testing.T) {
	valid := func() ServeCmd {
		return ServeCmd{
			LoginRateLimit: 10,
			SampleRatio:    1,
			Store:          StoreFlags{StoreType: "memory"},
			Auth:           AuthFlags{TokenSecret: strings.Repeat("s", 32), TokenTTL: time.Hour},
			Lifecycle:      LifecycleFlags{DeleteAdmin: true, RenameHeartbeat: 30 * time.Second},
			Sweep:          SweepFlags{Interval: time.Minute, StaleAfter: 5 * time.Minute},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *ServeCmd)
		errMsg string
	}{
		{"valid", func(c *ServeCmd) {}, ""},
		{"short secret", func(c *ServeCmd) { c.Auth.TokenSecret = "short" }, "token secret"},
		{"postgres without conn string", func(c *ServeCmd) { c.Store.StoreType = "postgres" }, "connection string"},
		{"mongo without uri", func(c *ServeCmd) { c.Store.StoreType = "mongo" }, "MongoDB URI"},
		{"stale marker window too short", func(c *ServeCmd) { c.Sweep.StaleAfter = 45 * time.Second }, "twice the rename heartbeat"},
		{"stale window ignored when sweep disabled", func(c *ServeCmd) {
			c.Sweep.Disabled = true
			c.Sweep.StaleAfter = 0
		}, ""},
		{"sample ratio", func(c *ServeCmd) { c.SampleRatio = 2 }, "sample ratio"},
		{"rate limit", func(c *ServeCmd) { c.LoginRateLimit = 0 }, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)

			err := c.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestRecoverCmd_Validate(t *testing.T) {
	c := RecoverCmd{StaleAfter: 5 * time.Minute, Store: StoreFlags{StoreType: "memory"}}
	require.ErrorContains(t, c.Validate(), "persistent store")

	c.Store = StoreFlags{StoreType: "postgres", Postgres: PostgresFlags{ConnString: "postgres://localhost/tenantd", MaxConns: 4, MinConns: 1}}
	require.NoError(t, c.Validate())

	c.Store.Postgres.MinConns = 8
	require.ErrorContains(t, c.Validate(), "min conns")
}

func TestStoreFlags_OpenMemory(t *testing.T) {
	flags := StoreFlags{StoreType: "memory"}

	stores, closeFn, err := flags.open(context.Background())
	require.NoError(t, err)
	defer closeFn()

	require.NotNil(t, stores.Admins)
	require.NotNil(t, stores.Partitions)

	reg, err := newRegistry(stores, 4)
	require.NoError(t, err)

	manager := newManager(stores, reg, nil, LifecycleFlags{DeleteAdmin: true, RenameHeartbeat: time.Second})
	res, err := manager.Create(context.Background(), "acme", "admin@acme.io", "correct horse")
	require.NoError(t, err)
	require.Equal(t, "org_acme", res.PartitionName)
}
