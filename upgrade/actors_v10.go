package upgrade

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/network"
	"github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"
	"go.opencensus.io/trace"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/actors/builtin/system"
	"github.com/filecoin-project/go-state-migration/actors/migration"
	"github.com/filecoin-project/go-state-migration/actors/migration/nv18"
	"github.com/filecoin-project/go-state-migration/actors/states"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
	"github.com/filecoin-project/go-state-migration/support/ipld"
)

// The nv18 upgrade to actors v10, at the configured height.
func ActorsV10Upgrade(cfg *Config, manifestCid cid.Cid) Upgrade {
	return Upgrade{
		Height:    cfg.UpgradeHeight,
		Network:   network.Version18,
		Expensive: true,
		Migration: func(ctx context.Context, cache migration.MigrationCache, bs ipldcbor.IpldBlockstore, root cid.Cid, epoch abi.ChainEpoch) (cid.Cid, error) {
			return UpgradeActorsV10(ctx, cache, bs, root, epoch, manifestCid, cfg.MigrationConfig())
		},
		PreMigrations: []PreMigration{{
			PreMigration: func(ctx context.Context, cache migration.MigrationCache, bs ipldcbor.IpldBlockstore, root cid.Cid, epoch abi.ChainEpoch) error {
				return PreUpgradeActorsV10(ctx, cache, bs, root, epoch, manifestCid, cfg.PreMigrationConfig())
			},
			StartWithin:     60,
			DontStartWithin: 10,
			StopWithin:      5,
		}},
	}
}

func UpgradeActorsV10(ctx context.Context, cache migration.MigrationCache, bs ipldcbor.IpldBlockstore, root cid.Cid,
	epoch abi.ChainEpoch, manifestCid cid.Cid, config migration.Config) (cid.Cid, error) {
	newRoot, err := upgradeActorsV10Common(ctx, cache, bs, root, epoch, manifestCid, config)
	if err != nil {
		return cid.Undef, xerrors.Errorf("migrating actors v10 state: %w", err)
	}
	return newRoot, nil
}

func PreUpgradeActorsV10(ctx context.Context, cache migration.MigrationCache, bs ipldcbor.IpldBlockstore, root cid.Cid,
	epoch abi.ChainEpoch, manifestCid cid.Cid, config migration.Config) error {
	_, err := upgradeActorsV10Common(ctx, cache, bs, root, epoch, manifestCid, config)
	return err
}

// Migrates the state root, committing the new blocks to the block store only if the migration
// and its sanity checks succeed.
func upgradeActorsV10Common(
	ctx context.Context, cache migration.MigrationCache, bs ipldcbor.IpldBlockstore,
	root cid.Cid, epoch abi.ChainEpoch, manifestCid cid.Cid,
	config migration.Config,
) (cid.Cid, error) {
	ctx, span := trace.StartSpan(ctx, "upgradeActorsV10")
	defer span.End()
	span.AddAttributes(
		trace.StringAttribute("root", root.String()),
		trace.Int64Attribute("epoch", int64(epoch)),
	)

	buf := ipld.NewBufferedBlockStore(bs)
	defer buf.Discard()
	store := adt.WrapBlockStore(ctx, buf)

	// Load the state root.
	var stateRoot states.StateRoot
	if err := store.Get(ctx, root, &stateRoot); err != nil {
		return cid.Undef, xerrors.Errorf("failed to decode state root: %w", err)
	}

	if stateRoot.Version != states.StateTreeVersion4 {
		return cid.Undef, xerrors.Errorf(
			"expected state root version 4 for actors v10 upgrade, got %d",
			stateRoot.Version,
		)
	}

	// Perform the migration
	newHamtRoot, err := nv18.MigrateStateTree(ctx, store, manifestCid, stateRoot.Actors, epoch, config, migrationLogger{}, cache)
	if err != nil {
		return cid.Undef, xerrors.Errorf("upgrading to actors v10: %w", err)
	}

	// Persist the result.
	newRoot, err := store.Put(ctx, &states.StateRoot{
		Version: states.StateTreeVersion5,
		Actors:  newHamtRoot,
		Info:    stateRoot.Info,
	})
	if err != nil {
		return cid.Undef, xerrors.Errorf("failed to persist new state root: %w", err)
	}

	if err := checkActorsV10Root(store, newRoot, manifestCid); err != nil {
		return cid.Undef, xerrors.Errorf("sanity check of migrated state root failed: %w", err)
	}

	// Persist the new tree.
	span.AddAttributes(trace.Int64Attribute("blocks", int64(buf.Pending())))
	if err := buf.Commit(ctx); err != nil {
		return cid.Undef, xerrors.Errorf("copying migrated tree: %w", err)
	}
	return newRoot, nil
}

// Reloads a migrated state root and checks that the system actor runs v10 code and records the
// v10 manifest.
func checkActorsV10Root(store adt.Store, root cid.Cid, manifestCid cid.Cid) error {
	ctx := store.Context()
	var stateRoot states.StateRoot
	if err := store.Get(ctx, root, &stateRoot); err != nil {
		return xerrors.Errorf("failed to reload state root: %w", err)
	}
	tree, err := states.LoadTree(store, stateRoot.Actors, stateRoot.Version)
	if err != nil {
		return err
	}
	mf, err := manifest.LoadManifest(ctx, store, manifestCid)
	if err != nil {
		return err
	}

	systemActor, found, err := tree.GetActor(builtin.SystemActorAddr)
	if err != nil {
		return xerrors.Errorf("failed to get system actor: %w", err)
	}
	if !found {
		return xerrors.Errorf("system actor not found")
	}
	if name, ok := mf.GetActorName(systemActor.Code); !ok || name != builtin.SystemActorName {
		return xerrors.Errorf("system actor has code %s, not the v10 system actor", systemActor.Code)
	}
	var systemState system.State
	if err := store.Get(ctx, systemActor.Head, &systemState); err != nil {
		return xerrors.Errorf("failed to load system actor state: %w", err)
	}
	if systemState.BuiltinActors != mf.Data {
		return xerrors.Errorf("system actor records manifest data %s, expected %s", systemState.BuiltinActors, mf.Data)
	}
	return nil
}
