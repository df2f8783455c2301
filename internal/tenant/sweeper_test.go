package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSweeper_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("drops orphaned partition after grace period", func(t *testing.T) {
		h := newHarness(t)
		h.create(t, "acme", "admin@acme.io")
		require.NoError(t, h.stores.Partitions.Create(ctx, "org_leftover"))

		now := time.Now()
		s := newSweeper(h.manager, SweeperConfig{OrphanPartitionGrace: time.Minute})
		s.now = func() time.Time { return now }

		report, err := s.RunOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"org_leftover"}, report.OrphanPartitions)
		require.Empty(t, report.PartitionsDropped)

		now = now.Add(30 * time.Second)
		report, err = s.RunOnce(ctx)
		require.NoError(t, err)
		require.Empty(t, report.PartitionsDropped)
		require.True(t, h.partitionExists(t, "org_leftover"))

		now = now.Add(time.Minute)
		report, err = s.RunOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"org_leftover"}, report.PartitionsDropped)
		require.False(t, h.partitionExists(t, "org_leftover"))
		require.True(t, h.partitionExists(t, "org_acme"))
	})

	t.Run("forgets partitions that become referenced", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.stores.Partitions.Create(ctx, "org_acme"))

		now := time.Now()
		s := newSweeper(h.manager, SweeperConfig{OrphanPartitionGrace: time.Minute})
		s.now = func() time.Time { return now }

		_, err := s.RunOnce(ctx)
		require.NoError(t, err)
		require.Contains(t, s.firstSeen, "org_acme")

		// A create in flight claims its partition.
		h.create(t, "acme", "admin@acme.io")

		now = now.Add(2 * time.Minute)
		report, err := s.RunOnce(ctx)
		require.NoError(t, err)
		require.Empty(t, report.OrphanPartitions)
		require.NotContains(t, s.firstSeen, "org_acme")
		require.True(t, h.partitionExists(t, "org_acme"))
	})
}

func TestSweeper_Background(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.create(t, "acme", "admin@acme.io")
	require.NoError(t, h.stores.Partitions.Drop(ctx, res.PartitionName))

	s := NewSweeper(ctx, h.manager, SweeperConfig{Interval: 10 * time.Millisecond, OrphanPartitionGrace: time.Hour})
	defer s.Stop()

	require.Eventually(t, func() bool {
		_, err := h.manager.Get(ctx, "acme")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}
