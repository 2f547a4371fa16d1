package migration

import (
	"context"
	"io"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

type ActorMigrationInput struct {
	Address    address.Address // actor's address
	Balance    abi.TokenAmount // actor's balance
	Head       cid.Cid         // actor's state head CID
	PriorEpoch abi.ChainEpoch  // epoch of last state transition prior to migration
	Cache      MigrationCache  // cache of existing cid -> cid migrations for this actor
}

type ActorMigrationResult struct {
	NewCodeCID cid.Cid
	NewHead    cid.Cid
}

type ActorMigration interface {
	// Loads an actor's state from an input store and writes new state to an output store.
	// Returns the new state head CID.
	MigrateState(ctx context.Context, store adt.Store, input ActorMigrationInput) (result *ActorMigrationResult, err error)
	MigratedCodeCID() cid.Cid
}

// Migrator which preserves the head CID and provides a fixed result code CID.
type CodeMigrator struct {
	OutCodeCID cid.Cid
}

var _ ActorMigration = CodeMigrator{}

func (n CodeMigrator) MigrateState(_ context.Context, _ adt.Store, in ActorMigrationInput) (*ActorMigrationResult, error) {
	return &ActorMigrationResult{
		NewCodeCID: n.OutCodeCID,
		NewHead:    in.Head,
	}, nil
}

func (n CodeMigrator) MigratedCodeCID() cid.Cid {
	return n.OutCodeCID
}

// Wraps a migration so that the new head it computes for an (address, head) pair is remembered
// in the cache, and reused if the same pair is migrated again.
func CachedMigration(cache MigrationCache, m ActorMigration) ActorMigration {
	return cachedMigrator{
		actorMigration: m,
		cache:          cache,
	}
}

type cachedMigrator struct {
	cache          MigrationCache
	actorMigration ActorMigration
}

func (c cachedMigrator) MigrateState(ctx context.Context, store adt.Store, in ActorMigrationInput) (*ActorMigrationResult, error) {
	newHead, err := c.cache.Load(
		ActorHeadKey(in.Address, in.Head),
		func() (cid.Cid, error) {
			result, err := c.actorMigration.MigrateState(ctx, store, in)
			if err != nil {
				return cid.Undef, err
			}
			return result.NewHead, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return &ActorMigrationResult{
		NewCodeCID: c.MigratedCodeCID(),
		NewHead:    newHead,
	}, nil
}

func (c cachedMigrator) MigratedCodeCID() cid.Cid {
	return c.actorMigration.MigratedCodeCID()
}

// Loads an actor state object, distinguishing a block the store cannot provide (ErrStore)
// from one that does not decode (ErrMalformedActorState).
func LoadActorState(ctx context.Context, store adt.Store, head cid.Cid, out cbg.CBORUnmarshaler) error {
	dec := &stateDecoder{out: out}
	if err := store.Get(ctx, head, dec); err != nil {
		if dec.err != nil {
			return &Error{Kind: ErrMalformedActorState, Err: xerrors.Errorf("failed to decode state %s: %w", head, dec.err)}
		}
		return WithKind(ErrStore, xerrors.Errorf("failed to load state %s: %w", head, err))
	}
	return nil
}

// Writes an actor state object, returning its CID.
func PutActorState(ctx context.Context, store adt.Store, state cbg.CBORMarshaler) (cid.Cid, error) {
	c, err := store.Put(ctx, state)
	if err != nil {
		return cid.Undef, WithKind(ErrStore, xerrors.Errorf("failed to write state: %w", err))
	}
	return c, nil
}

// Records the error of the decode step, which the store does not distinguish from a failed read.
type stateDecoder struct {
	out cbg.CBORUnmarshaler
	err error
}

func (d *stateDecoder) UnmarshalCBOR(r io.Reader) error {
	d.err = d.out.UnmarshalCBOR(r)
	return d.err
}
