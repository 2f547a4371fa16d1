package nv18

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/rt"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/actors/builtin/system"
	"github.com/filecoin-project/go-state-migration/actors/migration"
	"github.com/filecoin-project/go-state-migration/actors/states"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

// Network version name, for logs and metrics.
const UpgradeName = "nv18"

// Actor kinds whose state layout is the same in actors v9 and v10.
var identityActors = []string{
	builtin.AccountActorName,
	builtin.CronActorName,
	builtin.StoragePowerActorName,
	builtin.StorageMinerActorName,
	builtin.StorageMarketActorName,
	builtin.PaymentChannelActorName,
	builtin.MultisigActorName,
	builtin.RewardActorName,
	builtin.VerifiedRegistryActorName,
	builtin.DatacapActorName,
}

// Migrates from actors v9 to v10, and state tree version 4 to 5.
//
// The system actor records the new manifest, and the init actor allocates an ID for the Ethereum zero
// address. All other actors only change code CID. Afterwards, the Ethereum Address Manager singleton
// and an EthAccount actor for the Ethereum zero address are created.
//
// The store must support concurrent writes (even if the configured worker count is 1).
func MigrateStateTree(ctx context.Context, store cbor.IpldStore, newManifestCID cid.Cid, actorsRootIn cid.Cid, priorEpoch abi.ChainEpoch, cfg migration.Config, log migration.Logger, cache migration.MigrationCache) (cid.Cid, error) {
	adtStore := adt.WrapStore(ctx, store)
	m, err := NewMigration(adtStore, newManifestCID, actorsRootIn, cache)
	if err != nil {
		return cid.Undef, err
	}
	log.Log(rt.INFO, "Migrating %s with %d actor kinds to manifest %s", actorsRootIn, m.Registry.Len(), newManifestCID)
	return migration.RunMigration(ctx, cfg, cache, store, log, actorsRootIn, priorEpoch, m)
}

// Builds the migration of the given actors tree to the actors of a v10 manifest.
// The old manifest is the one recorded by the tree's system actor.
func NewMigration(store adt.Store, newManifestCID cid.Cid, actorsRootIn cid.Cid, cache migration.MigrationCache) (*migration.Migration, error) {
	ctx := store.Context()
	actorsIn, err := states.LoadTree(store, actorsRootIn, states.StateTreeVersion4)
	if err != nil {
		return nil, migration.ClassifyStoreError(xerrors.Errorf("loading state tree %s: %w", actorsRootIn, err), migration.ErrStore)
	}
	oldManifest, err := loadSystemManifest(ctx, store, actorsIn)
	if err != nil {
		return nil, err
	}

	newManifest, err := manifest.LoadManifest(ctx, store, newManifestCID)
	if err != nil {
		return nil, migration.ClassifyStoreError(xerrors.Errorf("loading new manifest: %w", err), migration.ErrUnknownActorCode)
	}

	eamCode, ok := newManifest.Get(builtin.EthereumAddressManagerActorName)
	if !ok {
		return nil, &migration.Error{Kind: migration.ErrUnknownActorCode,
			Err: xerrors.Errorf("new manifest has no %s actor", builtin.EthereumAddressManagerActorName)}
	}
	ethAccountCode, ok := newManifest.Get(builtin.EthAccountActorName)
	if !ok {
		return nil, &migration.Error{Kind: migration.ErrUnknownActorCode,
			Err: xerrors.Errorf("new manifest has no %s actor", builtin.EthAccountActorName)}
	}

	registry, err := migration.BuildRegistry(oldManifest, newManifest, Units(newManifest, cache))
	if err != nil {
		return nil, err
	}

	return &migration.Migration{
		Name:              UpgradeName,
		InputTreeVersion:  states.StateTreeVersion4,
		OutputTreeVersion: states.StateTreeVersion5,
		Registry:          registry,
		PostMigrators: []migration.PostMigrator{
			eamCreator{CodeCID: eamCode},
			ethZeroAccountCreator{CodeCID: ethAccountCode},
		},
		Verifier: &migration.Verifier{
			NewManifest: newManifest,
			TreeVersion: states.StateTreeVersion5,
		},
	}, nil
}

// Declares the migration of each actors v9 kind.
func Units(newManifest *manifest.Manifest, cache migration.MigrationCache) map[string]migration.UnitFactory {
	units := map[string]migration.UnitFactory{
		builtin.SystemActorName: func(code cid.Cid) migration.ActorMigration {
			return systemActorMigrator{OutCodeCID: code, ManifestData: newManifest.Data}
		},
		builtin.InitActorName: func(code cid.Cid) migration.ActorMigration {
			if cache == nil {
				return initActorMigrator{OutCodeCID: code}
			}
			return migration.CachedMigration(cache, initActorMigrator{OutCodeCID: code})
		},
	}
	for _, name := range identityActors {
		units[name] = migration.Identity
	}
	return units
}

func loadSystemManifest(ctx context.Context, store adt.Store, actorsIn *states.Tree) (*manifest.Manifest, error) {
	systemActor, found, err := actorsIn.GetActor(builtin.SystemActorAddr)
	if err != nil {
		return nil, migration.ClassifyStoreError(xerrors.Errorf("failed to get system actor: %w", err), migration.ErrStore)
	}
	if !found {
		return nil, &migration.Error{Kind: migration.ErrMalformedActorState, Err: xerrors.Errorf("system actor not found")}
	}
	var systemState system.State
	if err := migration.LoadActorState(ctx, store, systemActor.Head, &systemState); err != nil {
		return nil, xerrors.Errorf("failed to load system actor state: %w", err)
	}
	oldManifest, err := systemState.LoadManifest(store)
	if err != nil {
		return nil, migration.ClassifyStoreError(xerrors.Errorf("loading old manifest: %w", err), migration.ErrMalformedActorState)
	}
	return oldManifest, nil
}
