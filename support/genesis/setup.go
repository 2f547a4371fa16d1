package genesis

import (
	"context"
	"fmt"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	init_ "github.com/filecoin-project/go-state-migration/actors/builtin/init"
	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/actors/builtin/system"
	"github.com/filecoin-project/go-state-migration/actors/states"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
	tutil "github.com/filecoin-project/go-state-migration/support/testing"
)

var FIL = big.NewInt(1e18)

// Writes a manifest of identity code CIDs for the named actor kinds at an actors version.
func MakeManifest(t testing.TB, store adt.Store, actorsVersion int, names []string) (*manifest.Manifest, cid.Cid) {
	entries := make([]manifest.ManifestEntry, len(names))
	for i, name := range names {
		entries[i] = manifest.ManifestEntry{Name: name, Code: tutil.MakeCodeCID(actorsVersion, name)}
	}
	mf, mfCid, err := manifest.PutManifest(context.Background(), store, entries)
	require.NoError(t, err)
	return mf, mfCid
}

// A state tree built for testing, with the actors it contains.
type State struct {
	Root     cid.Cid
	Version  states.StateTreeVersion
	Manifest *manifest.Manifest
	// Non-singleton actors, by ID address.
	Actors map[address.Address]*states.Actor
	// Robust addresses of the non-singleton actors.
	Robust map[address.Address]address.Address
	// Sum of all actor balances.
	TotalBalance abi.TokenAmount
}

// Options for the non-singleton actors of a test state.
type Options struct {
	Accounts  int
	Miners    int
	Multisigs int
	Paychs    int
}

// Builds a state tree with every singleton actor of the manifest plus the requested accounts and other
// actors, whose robust addresses are registered with the init actor.
// Actor state other than that of the system and init actors is opaque, since migrating it
// only replaces code CIDs.
func NewStateWithSingletons(ctx context.Context, t testing.TB, store adt.Store, mf *manifest.Manifest, version states.StateTreeVersion, opts Options) *State {
	tree, err := states.NewTree(store, version)
	require.NoError(t, err)

	st := &State{
		Version:      version,
		Manifest:     mf,
		Actors:       map[address.Address]*states.Actor{},
		Robust:       map[address.Address]address.Address{},
		TotalBalance: big.Zero(),
	}
	code := func(name string) cid.Cid {
		c, ok := mf.Get(name)
		require.True(t, ok, "manifest has no %s actor", name)
		return c
	}
	// Distinct heads for distinct actors.
	opaque := func(label string) cid.Cid {
		link := cbg.CborCid(tutil.MakeCID(label, nil))
		c, err := store.Put(ctx, &link)
		require.NoError(t, err)
		return c
	}
	set := func(a address.Address, actor *states.Actor) {
		require.NoError(t, tree.SetActor(a, actor))
		st.TotalBalance = big.Add(st.TotalBalance, actor.Balance)
	}

	sysHead, err := store.Put(ctx, &system.State{BuiltinActors: mf.Data})
	require.NoError(t, err)
	set(builtin.SystemActorAddr, &states.Actor{Code: code(builtin.SystemActorName), Head: sysHead, Balance: big.Zero()})

	initState, err := init_.ConstructState(store, "scenarios")
	require.NoError(t, err)

	singletons := []struct {
		name    string
		addr    address.Address
		balance abi.TokenAmount
	}{
		{builtin.RewardActorName, builtin.RewardActorAddr, big.Mul(big.NewInt(1_000), FIL)},
		{builtin.CronActorName, builtin.CronActorAddr, big.Zero()},
		{builtin.StoragePowerActorName, builtin.StoragePowerActorAddr, big.Zero()},
		{builtin.StorageMarketActorName, builtin.StorageMarketActorAddr, big.Mul(big.NewInt(5), FIL)},
		{builtin.VerifiedRegistryActorName, builtin.VerifiedRegistryActorAddr, big.Zero()},
		{builtin.DatacapActorName, builtin.DatacapActorAddr, big.Zero()},
		{builtin.AccountActorName, builtin.BurntFundsActorAddr, big.Mul(big.NewInt(3), FIL)},
	}
	for _, s := range singletons {
		set(s.addr, &states.Actor{Code: code(s.name), Head: opaque(s.addr.String()), Balance: s.balance})
	}

	addActor := func(name string, robust address.Address, balance abi.TokenAmount, seq uint64) {
		idAddr, err := initState.MapAddressToNewID(store, robust)
		require.NoError(t, err)
		actor := &states.Actor{Code: code(name), Head: opaque(robust.String()), CallSeqNum: seq, Balance: balance}
		set(idAddr, actor)
		st.Actors[idAddr] = actor
		st.Robust[idAddr] = robust
	}
	for i := 0; i < opts.Accounts; i++ {
		addActor(builtin.AccountActorName, tutil.NewBLSAddr(t, int64(i)), big.Mul(big.NewInt(int64(i+1)), FIL), uint64(i))
	}
	for i := 0; i < opts.Miners; i++ {
		addActor(builtin.StorageMinerActorName, tutil.NewActorAddr(t, fmt.Sprintf("miner-%d", i)), big.NewInt(int64(1000*i)), 0)
	}
	for i := 0; i < opts.Multisigs; i++ {
		addActor(builtin.MultisigActorName, tutil.NewActorAddr(t, fmt.Sprintf("msig-%d", i)), big.Mul(big.NewInt(10), FIL), 0)
	}
	for i := 0; i < opts.Paychs; i++ {
		addActor(builtin.PaymentChannelActorName, tutil.NewActorAddr(t, fmt.Sprintf("paych-%d", i)), big.NewInt(int64(7*i)), 0)
	}

	initHead, err := store.Put(ctx, initState)
	require.NoError(t, err)
	set(builtin.InitActorAddr, &states.Actor{Code: code(builtin.InitActorName), Head: initHead, Balance: big.Zero()})

	st.Root, err = tree.Flush()
	require.NoError(t, err)
	return st
}
