package migration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/rt"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"go.opencensus.io/stats"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/states"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
	"github.com/filecoin-project/go-state-migration/metrics"
)

// A tree-level adjustment run after every actor has been migrated, such as creating an actor the
// upgrade introduces. Post-migrators run one at a time in the order they are declared, each seeing
// the effects of those before it.
type PostMigrator interface {
	Name() string
	MigrateState(ctx context.Context, store adt.Store, actorsIn, actorsOut *states.Tree) error
}

// Everything that distinguishes one upgrade's migration from another's.
type Migration struct {
	// Network version the migration upgrades to, for logs and metrics.
	Name string
	// Version of the input and output state trees.
	InputTreeVersion  states.StateTreeVersion
	OutputTreeVersion states.StateTreeVersion
	Registry          *Registry
	PostMigrators     []PostMigrator
	// Checks the result after it is flushed. Optional.
	Verifier *Verifier
}

// Migrates the actors tree at actorsRootIn, returning the root of the migrated actors tree.
//
// One goroutine walks the input tree and queues a job per actor. Workers run the jobs and a single
// writer inserts their results in the output tree. After all jobs are done the post-migrators run,
// the output tree is flushed and the verifier checks it.
// The store must support concurrent writes (even if the configured worker count is 1).
// Nothing is flushed if the context is cancelled or any step fails.
func RunMigration(ctx context.Context, cfg Config, cache MigrationCache, store cbor.IpldStore, log Logger,
	actorsRootIn cid.Cid, priorEpoch abi.ChainEpoch, m *Migration) (cid.Cid, error) {
	if cfg.MaxWorkers <= 0 {
		return cid.Undef, xerrors.Errorf("invalid migration config with %d workers", cfg.MaxWorkers)
	}
	if m.Registry == nil {
		return cid.Undef, &Error{Kind: ErrUnknownActorCode, Err: xerrors.Errorf("migration %s has no registry", m.Name)}
	}
	ctx = metrics.WithUpgrade(ctx, m.Name)
	startTime := time.Now()
	p := message.NewPrinter(language.English)

	// Load input and output state trees
	adtStore := adt.WrapStore(ctx, store)
	actorsIn, err := states.LoadTree(adtStore, actorsRootIn, m.InputTreeVersion)
	if err != nil {
		return cid.Undef, ClassifyStoreError(xerrors.Errorf("loading state tree %s: %w", actorsRootIn, err), ErrStore)
	}
	actorsOut, err := states.NewTree(adtStore, m.OutputTreeVersion)
	if err != nil {
		return cid.Undef, WithKind(ErrStore, err)
	}

	// Setup synchronization
	grp, gctx := errgroup.WithContext(ctx)
	jobStore := adt.WrapStore(gctx, store)
	// Input and output queues for workers.
	jobCh := make(chan *migrationJob, cfg.JobQueueSize)
	jobResultCh := make(chan *migrationJobResult, cfg.ResultQueueSize)
	// Atomically-modified counters for logging progress
	var jobCount uint32
	var doneCount uint32

	// Iterate all actors in old state root to create migration jobs for each actor.
	grp.Go(func() error {
		defer close(jobCh)
		log.Log(rt.INFO, "Creating migration jobs for tree %s", actorsRootIn)
		if err := actorsIn.ForEach(func(addr address.Address, actorIn *states.Actor) error {
			entry, ok := m.Registry.Lookup(actorIn.Code)
			if !ok {
				return &Error{Kind: ErrUnknownActorCode,
					Err: xerrors.Errorf("actor %s with code %s has no registered migration function", addr, actorIn.Code)}
			}
			nextInput := &migrationJob{
				Address:       addr,
				Actor:         *actorIn, // Must take a copy, the pointer is not stable.
				RegistryEntry: entry,
				cache:         cache,
			}
			select {
			case jobCh <- nextInput:
			case <-gctx.Done():
				return gctx.Err()
			}
			atomic.AddUint32(&jobCount, 1)
			return nil
		}); err != nil {
			return ClassifyStoreError(err, ErrStore)
		}
		log.Log(rt.INFO, "Done creating %d migration jobs for tree %s after %v", atomic.LoadUint32(&jobCount), actorsRootIn, time.Since(startTime))
		return nil
	})

	// Worker threads run jobs.
	var workerWg sync.WaitGroup
	for i := uint(0); i < cfg.MaxWorkers; i++ {
		workerWg.Add(1)
		workerId := i
		grp.Go(func() error {
			defer workerWg.Done()
			for job := range jobCh {
				result, err := job.run(gctx, jobStore, priorEpoch)
				if err != nil {
					return err
				}
				select {
				case jobResultCh <- result:
				case <-gctx.Done():
					return gctx.Err()
				}
				atomic.AddUint32(&doneCount, 1)
			}
			log.Log(rt.DEBUG, "Worker %d done", workerId)
			return nil
		})
	}
	log.Log(rt.INFO, "Started %d workers", cfg.MaxWorkers)

	// Monitor the job queue. This non-critical goroutine is outside the errgroup and exits when
	// workersFinished is closed, or the context done.
	workersFinished := make(chan struct{}) // Closed when waitgroup is emptied.
	if cfg.ProgressLogPeriod > 0 {
		go func() {
			defer log.Log(rt.DEBUG, "Job queue monitor done")
			for {
				select {
				case <-time.After(cfg.ProgressLogPeriod):
					jobsNow := atomic.LoadUint32(&jobCount) // Snapshot values to avoid incorrect-looking arithmetic if they change.
					doneNow := atomic.LoadUint32(&doneCount)
					pendingNow := jobsNow - doneNow
					elapsed := time.Since(startTime)
					rate := float64(doneNow) / elapsed.Seconds()
					log.Log(rt.INFO, "%s", p.Sprintf("%d jobs created, %d done, %d pending after %v (%.0f/s)",
						jobsNow, doneNow, pendingNow, elapsed, rate))
				case <-workersFinished:
					return
				case <-gctx.Done():
					return
				}
			}
		}()
	}

	// Close result channel when workers are done sending to it.
	grp.Go(func() error {
		workerWg.Wait()
		close(jobResultCh)
		close(workersFinished)
		log.Log(rt.INFO, "All workers done after %v", time.Since(startTime))
		return nil
	})

	// Insert migrated records in output state tree.
	grp.Go(func() error {
		log.Log(rt.INFO, "Result writer started")
		resultCount, err := writeResults(actorsOut, jobResultCh)
		if err != nil {
			return err
		}
		log.Log(rt.INFO, "Result writer wrote %d results to state tree after %v", resultCount, time.Since(startTime))
		return nil
	})

	if err := grp.Wait(); err != nil {
		recordFailure(ctx, err)
		return cid.Undef, err
	}
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}

	elapsed := time.Since(startTime)
	rate := float64(doneCount) / elapsed.Seconds()
	log.Log(rt.INFO, "%s", p.Sprintf("All %d done after %v (%.0f/s).", doneCount, elapsed, rate))
	stats.Record(ctx, metrics.ActorsMigrated.M(int64(doneCount)))

	// Post-migrations run in declaration order, after every job result is in the output tree.
	for _, pm := range m.PostMigrators {
		if err := ctx.Err(); err != nil {
			return cid.Undef, err
		}
		log.Log(rt.INFO, "Running post-migration %s", pm.Name())
		if err := pm.MigrateState(ctx, adtStore, actorsIn, actorsOut); err != nil {
			recordFailure(ctx, err)
			return cid.Undef, xerrors.Errorf("post-migration %s failed: %w", pm.Name(), err)
		}
	}

	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	log.Log(rt.INFO, "Flushing state tree root.")
	actorsRootOut, err := actorsOut.Flush()
	if err != nil {
		return cid.Undef, WithKind(ErrStore, xerrors.Errorf("flushing state tree: %w", err))
	}

	if m.Verifier != nil {
		if err := m.Verifier.Verify(ctx, adtStore, actorsIn, actorsRootOut); err != nil {
			recordFailure(ctx, err)
			return cid.Undef, err
		}
		log.Log(rt.INFO, "Verified state tree %s", actorsRootOut)
	}

	stats.Record(ctx, metrics.MigrationDuration.M(metrics.SinceInMilliseconds(startTime)))
	log.Log(rt.INFO, "Migration %s of %s produced %s after %v", m.Name, actorsRootIn, actorsRootOut, time.Since(startTime))
	return actorsRootOut, nil
}

func recordFailure(ctx context.Context, err error) {
	failureType := "other"
	if kind := KindOf(err); kind != nil {
		failureType = kind.Error()
	} else if xerrors.Is(err, context.Canceled) {
		failureType = "cancelled"
	}
	metrics.RecordFailure(ctx, failureType)
}
