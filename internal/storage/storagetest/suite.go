// Package storagetest holds the behaviour every storage.DB must share.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ammSettle/internal/storage"
)

// Run exercises db against the storage.DB contract.
func Run(t *testing.T, open func(t *testing.T) storage.DB) {
	t.Run("ReadWriteDelete", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		_, err := db.Read(ctx, []byte("missing"))
		require.ErrorIs(t, err, storage.ErrKeyNotFound)

		require.NoError(t, db.Write(ctx, []byte("k"), []byte("v1")))
		got, err := db.Read(ctx, []byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("v1"), got)

		require.NoError(t, db.Write(ctx, []byte("k"), []byte("v2")))
		got, err = db.Read(ctx, []byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("v2"), got)

		require.NoError(t, db.Delete(ctx, []byte("k")))
		_, err = db.Read(ctx, []byte("k"))
		require.ErrorIs(t, err, storage.ErrKeyNotFound)
	})

	t.Run("Batch", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		require.NoError(t, db.Write(ctx, []byte("old"), []byte("x")))
		require.NoError(t, db.Batch(ctx, []storage.BatchOperation{
			storage.Put([]byte("a"), []byte("1")),
			storage.Put([]byte("b"), []byte("2")),
			{Type: storage.BatchDelete, Key: []byte("old")},
		}))

		for key, want := range map[string]string{"a": "1", "b": "2"} {
			got, err := db.Read(ctx, []byte(key))
			require.NoError(t, err)
			require.Equal(t, want, string(got))
		}
		_, err := db.Read(ctx, []byte("old"))
		require.ErrorIs(t, err, storage.ErrKeyNotFound)

		err = db.Batch(ctx, []storage.BatchOperation{
			storage.Put([]byte("c"), []byte("3")),
			{Type: storage.BatchOpType(99), Key: []byte("d")},
		})
		require.Error(t, err)
		_, err = db.Read(ctx, []byte("c"))
		require.ErrorIs(t, err, storage.ErrKeyNotFound, "a rejected batch must not apply any operation")
	})

	t.Run("IteratorRange", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		for _, key := range []string{"p/a", "p/b", "p/c", "q/a"} {
			require.NoError(t, db.Write(ctx, []byte(key), []byte("v:"+key)))
		}

		prefix := []byte("p/")
		it, err := db.Iterator(ctx, prefix, storage.PrefixEnd(prefix))
		require.NoError(t, err)
		defer it.Close()

		var keys []string
		for it.Next() {
			keys = append(keys, string(it.Key()))
			require.Equal(t, "v:"+string(it.Key()), string(it.Value()))
		}
		require.NoError(t, it.Error())
		require.Equal(t, []string{"p/a", "p/b", "p/c"}, keys)
	})
}
