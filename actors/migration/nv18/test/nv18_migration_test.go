package test

import (
	"context"
	"strings"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	init_ "github.com/filecoin-project/go-state-migration/actors/builtin/init"
	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/actors/builtin/system"
	"github.com/filecoin-project/go-state-migration/actors/migration"
	"github.com/filecoin-project/go-state-migration/actors/migration/nv18"
	"github.com/filecoin-project/go-state-migration/actors/states"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
	"github.com/filecoin-project/go-state-migration/support/genesis"
	"github.com/filecoin-project/go-state-migration/support/ipld"
	tutil "github.com/filecoin-project/go-state-migration/support/testing"
)

var testOptions = genesis.Options{Accounts: 5, Miners: 3, Multisigs: 2, Paychs: 2}

type fixture struct {
	store       adt.Store
	prior       *genesis.State
	oldManifest *manifest.Manifest
	newManifest *manifest.Manifest
	manifestCid cid.Cid
}

func newFixture(t *testing.T, newNames []string) *fixture {
	ctx := context.Background()
	store := ipld.NewSyncADTStore(ctx)
	oldManifest, _ := genesis.MakeManifest(t, store, 9, builtin.BuiltinActorNamesV9)
	newManifest, manifestCid := genesis.MakeManifest(t, store, 10, newNames)
	prior := genesis.NewStateWithSingletons(ctx, t, store, oldManifest, states.StateTreeVersion4, testOptions)
	return &fixture{
		store:       store,
		prior:       prior,
		oldManifest: oldManifest,
		newManifest: newManifest,
		manifestCid: manifestCid,
	}
}

func (f *fixture) migrate(t *testing.T, root cid.Cid, workers uint, cache migration.MigrationCache) (cid.Cid, error) {
	cfg := migration.Config{MaxWorkers: workers, JobQueueSize: 16, ResultQueueSize: 4}
	return nv18.MigrateStateTree(context.Background(), f.store, f.manifestCid, root, abi.ChainEpoch(1000), cfg,
		migration.TestLogger{TB: t}, cache)
}

func TestNv18Migration(t *testing.T) {
	f := newFixture(t, builtin.BuiltinActorNamesV10)
	ctx := f.store.Context()

	priorTree, err := states.LoadTree(f.store, f.prior.Root, states.StateTreeVersion4)
	require.NoError(t, err)
	initActor, found, err := priorTree.GetActor(builtin.InitActorAddr)
	require.NoError(t, err)
	require.True(t, found)
	var priorInit init_.State
	require.NoError(t, f.store.Get(ctx, initActor.Head, &priorInit))

	root, err := f.migrate(t, f.prior.Root, 4, migration.NewMemMigrationCache())
	require.NoError(t, err)

	tree, err := states.LoadTree(f.store, root, states.StateTreeVersion5)
	require.NoError(t, err)
	acc, err := states.CheckStateInvariants(tree, f.newManifest, f.prior.TotalBalance)
	require.NoError(t, err)
	require.True(t, acc.IsEmpty(), strings.Join(acc.Messages(), "\n"))

	t.Run("actors change code only", func(t *testing.T) {
		for a, prior := range f.prior.Actors {
			actor, found, err := tree.GetActor(a)
			require.NoError(t, err)
			require.True(t, found, "actor %v missing", a)

			name, ok := f.oldManifest.GetActorName(prior.Code)
			require.True(t, ok)
			newCode, ok := f.newManifest.Get(name)
			require.True(t, ok)
			assert.Equal(t, newCode, actor.Code)
			assert.Equal(t, prior.Head, actor.Head)
			assert.Equal(t, prior.CallSeqNum, actor.CallSeqNum)
			assert.True(t, prior.Balance.Equals(actor.Balance), "balance %v, expected %v", actor.Balance, prior.Balance)
			assert.Nil(t, actor.Address)
		}
	})

	t.Run("system actor records new manifest", func(t *testing.T) {
		actor, found, err := tree.GetActor(builtin.SystemActorAddr)
		require.NoError(t, err)
		require.True(t, found)
		systemCode, _ := f.newManifest.Get(builtin.SystemActorName)
		assert.Equal(t, systemCode, actor.Code)

		var st system.State
		require.NoError(t, f.store.Get(ctx, actor.Head, &st))
		assert.Equal(t, f.newManifest.Data, st.BuiltinActors)
	})

	ethZero := nv18.EthZeroAddress()
	ethZeroID, err := address.NewIDAddress(uint64(priorInit.NextID))
	require.NoError(t, err)

	t.Run("init actor maps eth zero address", func(t *testing.T) {
		actor, found, err := tree.GetActor(builtin.InitActorAddr)
		require.NoError(t, err)
		require.True(t, found)

		var st init_.State
		require.NoError(t, f.store.Get(ctx, actor.Head, &st))
		assert.Equal(t, priorInit.NextID+1, st.NextID)
		assert.Equal(t, priorInit.NetworkName, st.NetworkName)

		resolved, found, err := st.ResolveAddress(f.store, ethZero)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, ethZeroID, resolved)

		// Existing mappings are untouched.
		for id, robust := range f.prior.Robust {
			resolved, found, err := st.ResolveAddress(f.store, robust)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, id, resolved)
		}
	})

	t.Run("eam created", func(t *testing.T) {
		actor, found, err := tree.GetActor(builtin.EthereumAddressManagerActorAddr)
		require.NoError(t, err)
		require.True(t, found)
		eamCode, _ := f.newManifest.Get(builtin.EthereumAddressManagerActorName)
		assert.Equal(t, eamCode, actor.Code)
		assert.Equal(t, emptyValueCid(t, f.store), actor.Head)
		assert.Equal(t, uint64(0), actor.CallSeqNum)
		assert.True(t, actor.Balance.IsZero())
		assert.Nil(t, actor.Address)
	})

	t.Run("eth zero account created", func(t *testing.T) {
		actor, found, err := tree.GetActor(ethZeroID)
		require.NoError(t, err)
		require.True(t, found)
		ethAccountCode, _ := f.newManifest.Get(builtin.EthAccountActorName)
		assert.Equal(t, ethAccountCode, actor.Code)
		assert.Equal(t, emptyValueCid(t, f.store), actor.Head)
		assert.True(t, actor.Balance.IsZero())
		require.NotNil(t, actor.Address)
		assert.Equal(t, ethZero, *actor.Address)
	})

	t.Run("tree holds exactly the prior actors and two new ones", func(t *testing.T) {
		keys := map[address.Address]bool{}
		require.NoError(t, priorTree.ForEachKey(func(a address.Address) error {
			keys[a] = true
			return nil
		}))
		count := 0
		require.NoError(t, tree.ForEachKey(func(a address.Address) error {
			count++
			if a != builtin.EthereumAddressManagerActorAddr && a != ethZeroID {
				assert.True(t, keys[a], "unexpected actor %v", a)
			}
			return nil
		}))
		assert.Equal(t, len(keys)+2, count)
	})
}

func TestCachedMigrationMatchesUncached(t *testing.T) {
	f := newFixture(t, builtin.BuiltinActorNamesV10)

	cache := migration.NewMemMigrationCache()
	first, err := f.migrate(t, f.prior.Root, 1, cache)
	require.NoError(t, err)
	assert.Positive(t, cache.Len())

	cachedRoot, err := f.migrate(t, f.prior.Root, 1, cache)
	require.NoError(t, err)
	noCacheRoot, err := f.migrate(t, f.prior.Root, 1, migration.NewMemMigrationCache())
	require.NoError(t, err)

	assert.True(t, cachedRoot.Equals(noCacheRoot))
	assert.True(t, first.Equals(noCacheRoot))
}

func TestMigrationIsDeterministicAcrossWorkerCounts(t *testing.T) {
	f := newFixture(t, builtin.BuiltinActorNamesV10)

	serial, err := f.migrate(t, f.prior.Root, 1, nil)
	require.NoError(t, err)
	for _, workers := range []uint{2, 3, 8} {
		root, err := f.migrate(t, f.prior.Root, workers, nil)
		require.NoError(t, err)
		assert.Equal(t, serial, root, "%d workers", workers)
	}
}

func TestUnknownActorCode(t *testing.T) {
	f := newFixture(t, builtin.BuiltinActorNamesV10)

	tree, err := states.LoadTree(f.store, f.prior.Root, states.StateTreeVersion4)
	require.NoError(t, err)
	stray := tutil.NewIDAddr(t, 5000)
	require.NoError(t, tree.SetActor(stray, &states.Actor{
		Code:    tutil.MakeCodeCID(9, "mystery"),
		Head:    emptyValueCid(t, f.store),
		Balance: big.Zero(),
	}))
	root, err := tree.Flush()
	require.NoError(t, err)

	_, err = f.migrate(t, root, 2, nil)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, migration.ErrUnknownActorCode), err.Error())
}

func TestEthZeroAddressAlreadyMapped(t *testing.T) {
	f := newFixture(t, builtin.BuiltinActorNamesV10)
	ctx := f.store.Context()

	tree, err := states.LoadTree(f.store, f.prior.Root, states.StateTreeVersion4)
	require.NoError(t, err)
	initActor, found, err := tree.GetActor(builtin.InitActorAddr)
	require.NoError(t, err)
	require.True(t, found)
	var st init_.State
	require.NoError(t, f.store.Get(ctx, initActor.Head, &st))
	_, err = st.MapAddressToNewID(f.store, nv18.EthZeroAddress())
	require.NoError(t, err)
	initActor.Head, err = f.store.Put(ctx, &st)
	require.NoError(t, err)
	require.NoError(t, tree.SetActor(builtin.InitActorAddr, initActor))
	root, err := tree.Flush()
	require.NoError(t, err)

	_, err = f.migrate(t, root, 2, nil)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, migration.ErrMalformedActorState), err.Error())
}

func TestNewManifestWithoutNewSingletons(t *testing.T) {
	for _, missing := range []string{builtin.EthereumAddressManagerActorName, builtin.EthAccountActorName} {
		t.Run(missing, func(t *testing.T) {
			var names []string
			for _, n := range builtin.BuiltinActorNamesV10 {
				if n != missing {
					names = append(names, n)
				}
			}
			f := newFixture(t, names)
			_, err := f.migrate(t, f.prior.Root, 1, nil)
			require.Error(t, err)
			assert.True(t, xerrors.Is(err, migration.ErrUnknownActorCode), err.Error())
			assert.Contains(t, err.Error(), missing)
		})
	}
}

func TestOldKindWithoutMigration(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewSyncADTStore(ctx)
	// An old bundle that already carried an evm actor, which this upgrade declares no migration for.
	oldManifest, _ := genesis.MakeManifest(t, store, 9, append(append([]string{}, builtin.BuiltinActorNamesV9...), builtin.EvmActorName))
	newManifest, _ := genesis.MakeManifest(t, store, 10, builtin.BuiltinActorNamesV10)

	_, err := migration.BuildRegistry(oldManifest, newManifest, nv18.Units(newManifest, nil))
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, migration.ErrUnknownActorCode), err.Error())
	assert.Contains(t, err.Error(), builtin.EvmActorName)
}

func TestSystemActorWithoutManifest(t *testing.T) {
	f := newFixture(t, builtin.BuiltinActorNamesV10)
	ctx := f.store.Context()

	tree, err := states.LoadTree(f.store, f.prior.Root, states.StateTreeVersion4)
	require.NoError(t, err)
	sysActor, found, err := tree.GetActor(builtin.SystemActorAddr)
	require.NoError(t, err)
	require.True(t, found)
	// Points at manifest data that is not in the store.
	sysActor.Head, err = f.store.Put(ctx, &system.State{BuiltinActors: tutil.MakeCID("absent", nil)})
	require.NoError(t, err)
	require.NoError(t, tree.SetActor(builtin.SystemActorAddr, sysActor))
	root, err := tree.Flush()
	require.NoError(t, err)

	_, err = f.migrate(t, root, 1, nil)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, migration.ErrStore), err.Error())
}

func emptyValueCid(t *testing.T, store adt.Store) cid.Cid {
	c, err := store.Put(store.Context(), &adt.EmptyValue{})
	require.NoError(t, err)
	return c
}
