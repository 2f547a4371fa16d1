package genesis_test

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	"github.com/filecoin-project/go-state-migration/actors/states"
	"github.com/filecoin-project/go-state-migration/support/genesis"
	ipld2 "github.com/filecoin-project/go-state-migration/support/ipld"
)

func TestNewStateWithSingletons(t *testing.T) {
	ctx := context.Background()
	store := ipld2.NewADTStore(ctx)
	mf, _ := genesis.MakeManifest(t, store, 9, builtin.BuiltinActorNamesV9)

	st := genesis.NewStateWithSingletons(ctx, t, store, mf, states.StateTreeVersion4, genesis.Options{
		Accounts: 3, Miners: 2, Multisigs: 1, Paychs: 1,
	})
	assert.Len(t, st.Actors, 7)
	assert.Len(t, st.Robust, 7)

	tree, err := states.LoadTree(store, st.Root, states.StateTreeVersion4)
	require.NoError(t, err)
	msgs, err := states.CheckStateInvariants(tree, mf, st.TotalBalance)
	require.NoError(t, err)
	assert.True(t, msgs.IsEmpty(), msgs.Messages())

	// Actors get consecutive IDs from the first non-singleton ID.
	first := builtin.FirstNonSingletonActorId
	for id := first; id < first+7; id++ {
		a, err := addrOf(id)
		require.NoError(t, err)
		actor, found, err := tree.GetActor(a)
		require.NoError(t, err)
		require.True(t, found, "actor %v", a)
		assert.Equal(t, st.Actors[a].Head, actor.Head)
	}

	count := 0
	require.NoError(t, tree.ForEachKey(func(_ address.Address) error {
		count++
		return nil
	}))
	// 9 singletons, including burnt funds.
	assert.Equal(t, 16, count)
	assert.True(t, st.TotalBalance.GreaterThan(big.Zero()))
}

func TestManifestsAreDistinctPerVersion(t *testing.T) {
	store := ipld2.NewADTStore(context.Background())
	v9, v9Cid := genesis.MakeManifest(t, store, 9, builtin.BuiltinActorNamesV9)
	v10, v10Cid := genesis.MakeManifest(t, store, 10, builtin.BuiltinActorNamesV10)
	assert.NotEqual(t, v9Cid, v10Cid)

	a9, ok := v9.Get(builtin.AccountActorName)
	require.True(t, ok)
	a10, ok := v10.Get(builtin.AccountActorName)
	require.True(t, ok)
	assert.NotEqual(t, a9, a10)

	_, ok = v9.Get(builtin.EthereumAddressManagerActorName)
	assert.False(t, ok)
}

func addrOf(id int) (address.Address, error) {
	return address.NewIDAddress(uint64(id))
}
