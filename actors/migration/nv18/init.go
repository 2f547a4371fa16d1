package nv18

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	init_ "github.com/filecoin-project/go-state-migration/actors/builtin/init"
	"github.com/filecoin-project/go-state-migration/actors/migration"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

// The delegated address of the Ethereum zero address, 0x0000000000000000000000000000000000000000.
func EthZeroAddress() address.Address {
	addr, err := address.NewDelegatedAddress(builtin.EthereumAddressManagerActorID, make([]byte, 20))
	if err != nil {
		panic(err)
	}
	return addr
}

// Init actor migrator.
// The state layout is unchanged, but an ID is allocated for the Ethereum zero address so that
// an actor for it can be created after all other actors are migrated.
type initActorMigrator struct {
	OutCodeCID cid.Cid
}

func (m initActorMigrator) MigrateState(ctx context.Context, store adt.Store, in migration.ActorMigrationInput) (*migration.ActorMigrationResult, error) {
	var st init_.State
	if err := migration.LoadActorState(ctx, store, in.Head, &st); err != nil {
		return nil, err
	}

	ethZero := EthZeroAddress()
	if _, found, err := st.ResolveAddress(store, ethZero); err != nil {
		return nil, migration.ClassifyStoreError(err, migration.ErrMalformedActorState)
	} else if found {
		return nil, &migration.Error{Kind: migration.ErrMalformedActorState,
			Err: xerrors.Errorf("address %s is already mapped in the init actor", ethZero)}
	}

	if _, err := st.MapAddressToNewID(store, ethZero); err != nil {
		return nil, migration.ClassifyStoreError(xerrors.Errorf("failed to allocate ID for %s: %w", ethZero, err),
			migration.ErrMalformedActorState)
	}

	newHead, err := migration.PutActorState(ctx, store, &st)
	if err != nil {
		return nil, err
	}
	return &migration.ActorMigrationResult{
		NewCodeCID: m.OutCodeCID,
		NewHead:    newHead,
	}, nil
}

func (m initActorMigrator) MigratedCodeCID() cid.Cid {
	return m.OutCodeCID
}
