package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/store"
)

func TestPartitionStore(t *testing.T) {
	ctx := context.Background()

	t.Run("create is idempotent", func(t *testing.T) {
		st := NewPartitionStore()
		require.NoError(t, st.Create(ctx, "org_acme"))
		require.NoError(t, st.Insert(ctx, "org_acme", &models.Document{ID: "1", Body: map[string]any{"a": 1}}))
		require.NoError(t, st.Create(ctx, "org_acme"))

		count, err := st.Count(ctx, "org_acme")
		require.NoError(t, err)
		require.Equal(t, int64(1), count)
	})

	t.Run("missing partition", func(t *testing.T) {
		st := NewPartitionStore()

		err := st.Insert(ctx, "org_missing", &models.Document{ID: "1"})
		require.Equal(t, store.ErrPartitionNotFound, err)

		_, err = st.Count(ctx, "org_missing")
		require.Equal(t, store.ErrPartitionNotFound, err)

		err = st.Iterate(ctx, "org_missing", func(*models.Document) error { return nil })
		require.Equal(t, store.ErrPartitionNotFound, err)

		require.NoError(t, st.Drop(ctx, "org_missing"))
	})

	t.Run("duplicate document id", func(t *testing.T) {
		st := NewPartitionStore()
		require.NoError(t, st.Create(ctx, "org_acme"))
		require.NoError(t, st.Insert(ctx, "org_acme", &models.Document{ID: "1"}))
		require.Equal(t, store.ErrDocumentExists, st.Insert(ctx, "org_acme", &models.Document{ID: "1"}))
	})

	t.Run("iterate follows insertion order", func(t *testing.T) {
		st := NewPartitionStore()
		require.NoError(t, st.Create(ctx, "org_acme"))
		for i := range 5 {
			require.NoError(t, st.Insert(ctx, "org_acme", &models.Document{
				ID:   fmt.Sprintf("doc-%d", 4-i),
				Body: map[string]any{"seq": i},
			}))
		}

		var seq []int
		require.NoError(t, st.Iterate(ctx, "org_acme", func(doc *models.Document) error {
			seq = append(seq, doc.Body["seq"].(int))
			return nil
		}))
		require.Equal(t, []int{0, 1, 2, 3, 4}, seq)
	})

	t.Run("iterate stops at the first error", func(t *testing.T) {
		st := NewPartitionStore()
		require.NoError(t, st.Create(ctx, "org_acme"))
		for i := range 3 {
			require.NoError(t, st.Insert(ctx, "org_acme", &models.Document{ID: fmt.Sprint(i)}))
		}

		stop := errors.New("stop")
		var calls int
		err := st.Iterate(ctx, "org_acme", func(*models.Document) error {
			calls++
			return stop
		})
		require.ErrorIs(t, err, stop)
		require.Equal(t, 1, calls)
	})

	t.Run("iterate may write to another partition", func(t *testing.T) {
		st := NewPartitionStore()
		require.NoError(t, st.Create(ctx, "org_src"))
		require.NoError(t, st.Create(ctx, "org_dst"))
		require.NoError(t, st.Insert(ctx, "org_src", &models.Document{ID: "1", Body: map[string]any{"k": "v"}}))

		require.NoError(t, st.Iterate(ctx, "org_src", func(doc *models.Document) error {
			return st.Insert(ctx, "org_dst", doc)
		}))

		count, err := st.Count(ctx, "org_dst")
		require.NoError(t, err)
		require.Equal(t, int64(1), count)
	})

	t.Run("stored bodies are copies", func(t *testing.T) {
		st := NewPartitionStore()
		require.NoError(t, st.Create(ctx, "org_acme"))
		body := map[string]any{"k": "v"}
		require.NoError(t, st.Insert(ctx, "org_acme", &models.Document{ID: "1", Body: body}))
		body["k"] = "mutated"

		require.NoError(t, st.Iterate(ctx, "org_acme", func(doc *models.Document) error {
			require.Equal(t, "v", doc.Body["k"])
			return nil
		}))
	})

	t.Run("list filters by prefix", func(t *testing.T) {
		st := NewPartitionStore()
		for _, name := range []string{"org_b", "org_a", "other"} {
			require.NoError(t, st.Create(ctx, name))
		}

		names, err := st.List(ctx, models.PartitionPrefix)
		require.NoError(t, err)
		require.Equal(t, []string{"org_a", "org_b"}, names)

		require.NoError(t, st.Drop(ctx, "org_a"))
		exists, err := st.Exists(ctx, "org_a")
		require.NoError(t, err)
		require.False(t, exists)
	})
}
