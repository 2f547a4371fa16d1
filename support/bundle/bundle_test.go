package bundle_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	block "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
	"github.com/filecoin-project/go-state-migration/support/bundle"
	"github.com/filecoin-project/go-state-migration/support/genesis"
	"github.com/filecoin-project/go-state-migration/support/ipld"
)

func TestBundleRoundTrip(t *testing.T) {
	ctx := context.Background()
	mf, mfCid, blocks := makeBundleBlocks(t, ctx)

	var buf bytes.Buffer
	require.NoError(t, bundle.WriteBundle(&buf, mfCid, blocks))

	bs := ipld.NewBlockStoreInMemory()
	loadedCid, loaded, err := bundle.LoadBundle(ctx, bs, &buf)
	require.NoError(t, err)
	assert.Equal(t, mfCid, loadedCid)
	assert.Equal(t, mf.Data, loaded.Data)
	assert.Equal(t, mf.Entries(), loaded.Entries())
	assert.Equal(t, len(blocks), bs.Len())

	eam, ok := loaded.Get(builtin.EthereumAddressManagerActorName)
	require.True(t, ok)
	assert.True(t, loaded.IsBuiltinCode(eam))
}

func TestLoadBundleFile(t *testing.T) {
	ctx := context.Background()
	_, mfCid, blocks := makeBundleBlocks(t, ctx)

	path := filepath.Join(t.TempDir(), "builtin-actors.car")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, bundle.WriteBundle(f, mfCid, blocks))
	require.NoError(t, f.Close())

	loadedCid, _, err := bundle.LoadBundleFile(ctx, ipld.NewBlockStoreInMemory(), path)
	require.NoError(t, err)
	assert.Equal(t, mfCid, loadedCid)

	_, _, err = bundle.LoadBundleFile(ctx, ipld.NewBlockStoreInMemory(), filepath.Join(t.TempDir(), "missing.car"))
	require.Error(t, err)
}

func TestBundleMissingManifestData(t *testing.T) {
	ctx := context.Background()
	_, mfCid, blocks := makeBundleBlocks(t, ctx)

	// Only the manifest block, without the data it points to.
	var kept []block.Block
	for _, b := range blocks {
		if b.Cid() == mfCid {
			kept = append(kept, b)
		}
	}
	require.Len(t, kept, 1)

	var buf bytes.Buffer
	require.NoError(t, bundle.WriteBundle(&buf, mfCid, kept))
	_, _, err := bundle.LoadBundle(ctx, ipld.NewBlockStoreInMemory(), &buf)
	require.Error(t, err)
}

func makeBundleBlocks(t *testing.T, ctx context.Context) (*manifest.Manifest, cid.Cid, []block.Block) {
	bs := ipld.NewBlockStoreInMemory()
	store := adt.WrapBlockStore(ctx, bs)
	mf, mfCid := genesis.MakeManifest(t, store, 10, builtin.BuiltinActorNamesV10)

	var blocks []block.Block
	for _, c := range []cid.Cid{mfCid, mf.Data} {
		b, err := bs.Get(ctx, c)
		require.NoError(t, err)
		blocks = append(blocks, b)
	}
	return mf, mfCid, blocks
}
