package nv18

import (
	"context"

	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	"github.com/filecoin-project/go-state-migration/actors/migration"
	"github.com/filecoin-project/go-state-migration/actors/states"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

// Creates the Ethereum Address Manager singleton, which has no state.
type eamCreator struct {
	CodeCID cid.Cid
}

var _ migration.PostMigrator = eamCreator{}

func (m eamCreator) Name() string {
	return "create " + builtin.EthereumAddressManagerActorName
}

func (m eamCreator) MigrateState(ctx context.Context, store adt.Store, _, actorsOut *states.Tree) error {
	if _, found, err := actorsOut.GetActor(builtin.EthereumAddressManagerActorAddr); err != nil {
		return migration.WithKind(migration.ErrStore, err)
	} else if found {
		return xerrors.Errorf("actor already exists at %s", builtin.EthereumAddressManagerActorAddr)
	}

	head, err := migration.PutActorState(ctx, store, &adt.EmptyValue{})
	if err != nil {
		return err
	}
	if err := actorsOut.SetActor(builtin.EthereumAddressManagerActorAddr, &states.Actor{
		Code:       m.CodeCID,
		Head:       head,
		CallSeqNum: 0,
		Balance:    big.Zero(),
	}); err != nil {
		return migration.WithKind(migration.ErrStore, xerrors.Errorf("failed to set eam actor: %w", err))
	}
	return nil
}
