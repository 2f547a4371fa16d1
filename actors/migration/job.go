package migration

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/states"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

type migrationJob struct {
	address.Address
	states.Actor
	RegistryEntry
	cache MigrationCache
}

type migrationJobResult struct {
	address.Address
	states.Actor
}

func (job *migrationJob) run(ctx context.Context, store adt.Store, priorEpoch abi.ChainEpoch) (*migrationJobResult, error) {
	result, err := job.Unit.MigrateState(ctx, store, ActorMigrationInput{
		Address:    job.Address,
		Balance:    job.Actor.Balance,
		Head:       job.Actor.Head,
		PriorEpoch: priorEpoch,
		Cache:      job.cache,
	})
	if err != nil {
		return nil, xerrors.Errorf("state migration failed for %s actor, addr %s: %w",
			job.Name, job.Address, err)
	}

	// Set up new actor record with the migrated state.
	return &migrationJobResult{
		job.Address, // Unchanged
		states.Actor{
			Code:       result.NewCodeCID,
			Head:       result.NewHead,
			CallSeqNum: job.Actor.CallSeqNum, // Unchanged
			Balance:    job.Actor.Balance,    // Unchanged
			Address:    job.Actor.Address,    // Unchanged
		},
	}, nil
}

// Inserts migrated records into the output tree, in whatever order they arrive.
// Records are keyed by address, so the resulting tree does not depend on the order.
func writeResults(actorsOut *states.Tree, results <-chan *migrationJobResult) (int, error) {
	resultCount := 0
	for result := range results {
		if err := actorsOut.SetActor(result.Address, &result.Actor); err != nil {
			return resultCount, WithKind(ErrStore, xerrors.Errorf("writing actor %s: %w", result.Address, err))
		}
		resultCount++
	}
	return resultCount, nil
}
