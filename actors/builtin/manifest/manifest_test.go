package manifest_test

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/support/ipld"
	tutil "github.com/filecoin-project/go-state-migration/support/testing"
)

func TestManifest(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip preserves order and lookups", func(t *testing.T) {
		store := ipld.NewADTStore(ctx)
		entries := []manifest.ManifestEntry{
			{Name: "system", Code: tutil.MakeCodeCID(10, "system")},
			{Name: "init", Code: tutil.MakeCodeCID(10, "init")},
			{Name: "account", Code: tutil.MakeCodeCID(10, "account")},
		}
		_, mfCid, err := manifest.PutManifest(ctx, store, entries)
		require.NoError(t, err)

		mf, err := manifest.LoadManifest(ctx, store, mfCid)
		require.NoError(t, err)
		assert.Equal(t, uint64(manifest.ManifestVersion), mf.Version)
		assert.Equal(t, entries, mf.Entries())

		code, ok := mf.Get("init")
		require.True(t, ok)
		assert.Equal(t, tutil.MakeCodeCID(10, "init"), code)

		name, ok := mf.GetActorName(tutil.MakeCodeCID(10, "account"))
		require.True(t, ok)
		assert.Equal(t, "account", name)

		_, ok = mf.Get("miner")
		assert.False(t, ok)
		assert.False(t, mf.IsBuiltinCode(tutil.MakeCodeCID(9, "account")))

		// The same manifest can be recovered from its data alone.
		fromData, err := manifest.LoadManifestData(ctx, store, mf.Data)
		require.NoError(t, err)
		assert.Equal(t, mf.Entries(), fromData.Entries())
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		store := ipld.NewADTStore(ctx)
		_, _, err := manifest.PutManifest(ctx, store, []manifest.ManifestEntry{
			{Name: "init", Code: tutil.MakeCodeCID(10, "init")},
			{Name: "init", Code: tutil.MakeCodeCID(10, "other")},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate manifest entry")
	})

	t.Run("unknown version rejected", func(t *testing.T) {
		store := ipld.NewADTStore(ctx)
		dataCid, err := store.Put(ctx, &manifest.ManifestData{})
		require.NoError(t, err)
		mfCid, err := store.Put(ctx, &manifest.Manifest{Version: 2, Data: dataCid})
		require.NoError(t, err)

		_, err = manifest.LoadManifest(ctx, store, mfCid)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown manifest version 2")
	})

	t.Run("missing data block", func(t *testing.T) {
		store := ipld.NewADTStore(ctx)
		_, err := manifest.LoadManifestData(ctx, store, tutil.MakeCID("nothing", nil))
		require.Error(t, err)
	})
}

func TestEmptyManifestData(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewADTStore(ctx)
	c, err := store.Put(ctx, &manifest.ManifestData{})
	require.NoError(t, err)

	var out manifest.ManifestData
	require.NoError(t, store.Get(ctx, c, &out))
	assert.Empty(t, out.Entries)
	assert.NotEqual(t, cid.Undef, c)
}
