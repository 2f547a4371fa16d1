package system_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/actors/builtin/system"
	"github.com/filecoin-project/go-state-migration/support/ipld"
	tutil "github.com/filecoin-project/go-state-migration/support/testing"
)

func TestConstruction(t *testing.T) {
	store := ipld.NewADTStore(context.Background())
	st, err := system.ConstructState(store)
	require.NoError(t, err)

	mf, err := st.LoadManifest(store)
	require.NoError(t, err)
	assert.Empty(t, mf.Entries())
}

func TestRecordsManifest(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewADTStore(ctx)
	mf, _, err := manifest.PutManifest(ctx, store, []manifest.ManifestEntry{
		{Name: "system", Code: tutil.MakeCodeCID(9, "system")},
	})
	require.NoError(t, err)

	stCid, err := store.Put(ctx, &system.State{BuiltinActors: mf.Data})
	require.NoError(t, err)

	var st system.State
	require.NoError(t, store.Get(ctx, stCid, &st))
	loaded, err := st.LoadManifest(store)
	require.NoError(t, err)
	code, ok := loaded.Get("system")
	require.True(t, ok)
	assert.Equal(t, tutil.MakeCodeCID(9, "system"), code)
}
