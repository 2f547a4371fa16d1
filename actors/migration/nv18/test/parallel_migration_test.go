package test

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	"github.com/filecoin-project/go-state-migration/actors/migration"
	"github.com/filecoin-project/go-state-migration/actors/migration/nv18"
)

func TestParallelMigrationCalls(t *testing.T) {
	// Construct simple prior state tree over a synchronized store
	f := newFixture(t, builtin.BuiltinActorNamesV10)
	log := migration.TestLogger{TB: t}
	startRoot := f.prior.Root

	// Run migration
	endRootSerial, err := nv18.MigrateStateTree(context.Background(), f.store, f.manifestCid, startRoot, abi.ChainEpoch(0), migration.Config{MaxWorkers: 1}, log, migration.NewMemMigrationCache())
	require.NoError(t, err)

	// Migrate in parallel
	var endRootParallel1, endRootParallel2 cid.Cid
	grp, ctx := errgroup.WithContext(context.Background())
	grp.Go(func() error {
		var err1 error
		endRootParallel1, err1 = nv18.MigrateStateTree(ctx, f.store, f.manifestCid, startRoot, abi.ChainEpoch(0), migration.Config{MaxWorkers: 2}, log, migration.NewMemMigrationCache())
		return err1
	})
	grp.Go(func() error {
		var err2 error
		endRootParallel2, err2 = nv18.MigrateStateTree(ctx, f.store, f.manifestCid, startRoot, abi.ChainEpoch(0), migration.Config{MaxWorkers: 2}, log, migration.NewMemMigrationCache())
		return err2
	})
	require.NoError(t, grp.Wait())
	assert.Equal(t, endRootSerial, endRootParallel1)
	assert.Equal(t, endRootParallel1, endRootParallel2)
}
