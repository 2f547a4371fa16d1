package nv18

import (
	"context"

	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	init_ "github.com/filecoin-project/go-state-migration/actors/builtin/init"
	"github.com/filecoin-project/go-state-migration/actors/migration"
	"github.com/filecoin-project/go-state-migration/actors/states"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

// Creates an EthAccount actor for the Ethereum zero address, at the ID the init actor migration
// allocated for it.
type ethZeroAccountCreator struct {
	CodeCID cid.Cid
}

var _ migration.PostMigrator = ethZeroAccountCreator{}

func (m ethZeroAccountCreator) Name() string {
	return "create eth zero " + builtin.EthAccountActorName
}

func (m ethZeroAccountCreator) MigrateState(ctx context.Context, store adt.Store, _, actorsOut *states.Tree) error {
	initActor, found, err := actorsOut.GetActor(builtin.InitActorAddr)
	if err != nil {
		return migration.WithKind(migration.ErrStore, err)
	}
	if !found {
		return xerrors.Errorf("init actor not found in migrated tree")
	}
	var initState init_.State
	if err := migration.LoadActorState(ctx, store, initActor.Head, &initState); err != nil {
		return err
	}

	ethZero := EthZeroAddress()
	ethZeroID, found, err := initState.ResolveAddress(store, ethZero)
	if err != nil {
		return migration.ClassifyStoreError(err, migration.ErrMalformedActorState)
	}
	if !found {
		return xerrors.Errorf("%s has no ID in the migrated init actor", ethZero)
	}
	if _, exists, err := actorsOut.GetActor(ethZeroID); err != nil {
		return migration.WithKind(migration.ErrStore, err)
	} else if exists {
		return xerrors.Errorf("actor already exists at %s", ethZeroID)
	}

	head, err := migration.PutActorState(ctx, store, &adt.EmptyValue{})
	if err != nil {
		return err
	}
	if err := actorsOut.SetActor(ethZeroID, &states.Actor{
		Code:       m.CodeCID,
		Head:       head,
		CallSeqNum: 0,
		Balance:    big.Zero(),
		Address:    &ethZero,
	}); err != nil {
		return migration.WithKind(migration.ErrStore, xerrors.Errorf("failed to set eth zero actor: %w", err))
	}
	return nil
}
