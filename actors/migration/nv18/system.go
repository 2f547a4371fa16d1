package nv18

import (
	"context"

	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/go-state-migration/actors/builtin/system"
	"github.com/filecoin-project/go-state-migration/actors/migration"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

// System Actor migrator
type systemActorMigrator struct {
	OutCodeCID   cid.Cid
	ManifestData cid.Cid
}

func (m systemActorMigrator) MigrateState(ctx context.Context, store adt.Store, _ migration.ActorMigrationInput) (*migration.ActorMigrationResult, error) {
	// The ManifestData itself is already in the blockstore
	state := system.State{BuiltinActors: m.ManifestData}
	stateHead, err := migration.PutActorState(ctx, store, &state)
	if err != nil {
		return nil, err
	}

	return &migration.ActorMigrationResult{
		NewCodeCID: m.OutCodeCID,
		NewHead:    stateHead,
	}, nil
}

func (m systemActorMigrator) MigratedCodeCID() cid.Cid {
	return m.OutCodeCID
}
