package upgrade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/network"
	"github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"
	"go.opencensus.io/stats"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/migration"
	"github.com/filecoin-project/go-state-migration/metrics"
)

type versionSpec struct {
	networkVersion network.Version
	atOrBelow      abi.ChainEpoch
}

// State of one scheduled pre-migration.
type preMigrationRun struct {
	started bool
	// Non-nil while the pre-migration may still be running.
	cancel context.CancelFunc
}

type upgradeMigration struct {
	upgrade       MigrationFunc
	network       network.Version
	preMigrations []PreMigration
	runs          []preMigrationRun
	cache         *migration.MemMigrationCache
	// Tracks running pre-migrations. Add is only called with Migrator.lk held.
	running sync.WaitGroup
}

// Runs the state migrations of an upgrade schedule as the chain reaches their heights.
type Migrator struct {
	bs ipldcbor.IpldBlockstore

	// Upgrade epoch to migration.
	stateMigrations map[abi.ChainEpoch]*upgradeMigration
	// Upgrades expected to take long enough that callers should plan for them.
	expensiveUpgrades map[abi.ChainEpoch]struct{}

	networkVersions []versionSpec
	latestVersion   network.Version

	// Parent of every pre-migration context. Cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	lk     sync.Mutex
	closed bool
}

func NewMigrator(bs ipldcbor.IpldBlockstore, us UpgradeSchedule, genesisVersion network.Version) (*Migrator, error) {
	if err := us.Validate(); err != nil {
		return nil, err
	}

	stateMigrations := make(map[abi.ChainEpoch]*upgradeMigration, len(us))
	expensiveUpgrades := make(map[abi.ChainEpoch]struct{}, len(us))
	var networkVersions []versionSpec
	lastVersion := genesisVersion
	for _, u := range us {
		if u.Network != lastVersion {
			networkVersions = append(networkVersions, versionSpec{
				networkVersion: lastVersion,
				atOrBelow:      u.Height,
			})
			lastVersion = u.Network
		}
		if u.Height < 0 {
			// Disabled.
			continue
		}
		if u.Migration != nil || len(u.PreMigrations) > 0 {
			stateMigrations[u.Height] = &upgradeMigration{
				upgrade:       u.Migration,
				network:       u.Network,
				preMigrations: u.PreMigrations,
				runs:          make([]preMigrationRun, len(u.PreMigrations)),
				cache:         migration.NewMemMigrationCache(),
			}
		}
		if u.Expensive {
			expensiveUpgrades[u.Height] = struct{}{}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Migrator{
		bs:                bs,
		stateMigrations:   stateMigrations,
		expensiveUpgrades: expensiveUpgrades,
		networkVersions:   networkVersions,
		latestVersion:     lastVersion,
		ctx:               ctx,
		cancel:            cancel,
	}, nil
}

// Migrates the state root if an upgrade is scheduled at the height, returning the root unchanged otherwise.
// Pre-migrations of the upgrade still running are cancelled and awaited first, so the migration sees
// everything they cached.
func (m *Migrator) HandleStateForks(ctx context.Context, root cid.Cid, height abi.ChainEpoch) (cid.Cid, error) {
	u := m.stateMigrations[height]
	if u == nil || u.upgrade == nil {
		return root, nil
	}
	m.stopPreMigrations(u)

	startTime := time.Now()
	log.Warnw("STARTING migration", "height", height, "from", root)
	// The migration works on a copy of the cache and the copy is merged back only on success.
	// The merge happens at the upgrade epoch too: a revert re-runs the migration, and the
	// cached results for unchanged actors make the second run cheap.
	tmpCache := u.cache.Clone()
	newRoot, err := u.upgrade(ctx, tmpCache, m.bs, root, height)
	if err != nil {
		log.Errorw("FAILED migration", "height", height, "from", root, "error", err)
		return cid.Undef, err
	}
	u.cache.Update(tmpCache)
	log.Warnw("COMPLETED migration",
		"height", height,
		"from", root,
		"to", newRoot,
		"duration", time.Since(startTime),
	)
	return newRoot, nil
}

func (m *Migrator) HasExpensiveFork(height abi.ChainEpoch) bool {
	_, ok := m.expensiveUpgrades[height]
	return ok
}

func (m *Migrator) GetNetworkVersion(height abi.ChainEpoch) network.Version {
	// Each spec holds the last epoch of its version.
	for _, spec := range m.networkVersions {
		if height <= spec.atOrBelow {
			return spec.networkVersion
		}
	}
	return m.latestVersion
}

// Returns the first epoch a pre-migration may start at, the first epoch it may no longer start at,
// and the epoch it is cancelled at.
func preMigrationWindow(upgradeEpoch abi.ChainEpoch, prem PreMigration) (start, noStart, stop abi.ChainEpoch) {
	start = upgradeEpoch - prem.StartWithin
	noStart = upgradeEpoch - prem.DontStartWithin
	stop = upgradeEpoch - prem.StopWithin
	if noStart > stop {
		noStart = stop - 1
	}
	return start, noStart, stop
}

// Advances the pre-migration schedule to a new chain head. Pre-migrations whose start window
// contains the height are started in the background from the given root, each at most once.
// Pre-migrations still running at their stop epoch are cancelled. PreMigrate does not block.
// A failed or cancelled pre-migration is logged and leaves its upgrade's cache untouched.
func (m *Migrator) PreMigrate(root cid.Cid, height abi.ChainEpoch) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if m.closed {
		return
	}

	for upgradeEpoch, u := range m.stateMigrations {
		for i, prem := range u.preMigrations {
			run := &u.runs[i]
			start, noStart, stop := preMigrationWindow(upgradeEpoch, prem)
			if run.started {
				if height >= stop && run.cancel != nil {
					log.Warnw("stopping pre-migration", "upgrade", upgradeEpoch, "height", height)
					run.cancel()
					run.cancel = nil
				}
				continue
			}
			if height < start || height >= noStart {
				continue
			}

			preCtx, preCancel := context.WithCancel(metrics.WithUpgrade(m.ctx, fmt.Sprintf("nv%d", u.network)))
			run.started = true
			run.cancel = preCancel
			u.running.Add(1)
			go func(u *upgradeMigration, fn PreMigrationFunc) {
				defer u.running.Done()
				defer preCancel()
				runPreMigration(preCtx, fn, u.cache, m.bs, root, height)
			}(u, prem.PreMigration)
		}
	}
}

// Cancels the upgrade's pre-migrations, keeps any from starting later and waits for the running ones.
func (m *Migrator) stopPreMigrations(u *upgradeMigration) {
	m.lk.Lock()
	for i := range u.runs {
		run := &u.runs[i]
		run.started = true
		if run.cancel != nil {
			run.cancel()
			run.cancel = nil
		}
	}
	m.lk.Unlock()
	u.running.Wait()
}

// Waits for the pre-migrations started so far to finish, without cancelling them.
// Must not be called concurrently with PreMigrate.
func (m *Migrator) WaitPreMigrations() {
	for _, u := range m.stateMigrations {
		u.running.Wait()
	}
}

// Cancels all running pre-migrations and waits for them to return. No pre-migration starts afterwards.
func (m *Migrator) Close() {
	m.lk.Lock()
	m.closed = true
	m.cancel()
	m.lk.Unlock()
	for _, u := range m.stateMigrations {
		u.running.Wait()
	}
}

func runPreMigration(ctx context.Context, fn PreMigrationFunc, cache *migration.MemMigrationCache, bs ipldcbor.IpldBlockstore, root cid.Cid, height abi.ChainEpoch) {
	startTime := time.Now()

	log.Warnw("STARTING pre-migration", "height", height, "from", root)
	stats.Record(ctx, metrics.PreMigrations.M(1))
	// Entries land in the shared cache only once the whole pre-migration succeeded.
	tmpCache := cache.Clone()
	if err := fn(ctx, tmpCache, bs, root, height); err != nil {
		log.Errorw("FAILED pre-migration", "height", height, "error", err)
		return
	}
	cache.Update(tmpCache)
	log.Warnw("COMPLETED pre-migration", "height", height, "duration", time.Since(startTime))
}

// Number of entries in the cache of the upgrade at a height.
func (m *Migrator) CacheLen(height abi.ChainEpoch) (int, error) {
	u, ok := m.stateMigrations[height]
	if !ok {
		return 0, xerrors.Errorf("no upgrade at height %d", height)
	}
	return u.cache.Len(), nil
}
