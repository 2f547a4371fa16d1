package upgrade

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/network"
	"github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/migration"
)

// Migrates the state root produced by the upgrade epoch, height, into the root the next epoch
// executes on. The cache belongs to the upgrade and holds whatever its pre-migrations stored.
type MigrationFunc func(
	ctx context.Context,
	cache migration.MigrationCache,
	bs ipldcbor.IpldBlockstore,
	oldState cid.Cid,
	height abi.ChainEpoch,
) (newState cid.Cid, err error)

// Migrates an earlier state root ahead of the upgrade, only to fill the cache.
type PreMigrationFunc func(
	ctx context.Context,
	cache migration.MigrationCache,
	bs ipldcbor.IpldBlockstore,
	oldState cid.Cid,
	height abi.ChainEpoch,
) error

// A cache-warming run ahead of an upgrade. All epochs count back from the upgrade height.
// A pre-migration may never run, and the final migration must not depend on it.
type PreMigration struct {
	// Must return soon after its context is cancelled.
	PreMigration PreMigrationFunc

	// First epoch, counted back, at which the pre-migration may start.
	StartWithin abi.ChainEpoch
	// The pre-migration is not started within this many epochs of the upgrade.
	// Zero means it may start until StopWithin.
	DontStartWithin abi.ChainEpoch
	// A run still going this many epochs before the upgrade is cancelled.
	StopWithin abi.ChainEpoch
}

func (p PreMigration) validate() error {
	if p.StartWithin <= 0 {
		return xerrors.Errorf("start-within %d is not positive", p.StartWithin)
	}
	if p.DontStartWithin < 0 || p.StopWithin < 0 {
		return xerrors.Errorf("negative dont-start-within %d or stop-within %d", p.DontStartWithin, p.StopWithin)
	}
	if p.StartWithin <= p.StopWithin {
		return xerrors.Errorf("start-within %d does not precede stop-within %d", p.StartWithin, p.StopWithin)
	}
	if p.DontStartWithin == 0 {
		return nil
	}
	if p.DontStartWithin < p.StopWithin {
		return xerrors.Errorf("dont-start-within %d falls after stop-within %d", p.DontStartWithin, p.StopWithin)
	}
	if p.DontStartWithin >= p.StartWithin {
		return xerrors.Errorf("dont-start-within %d does not follow start-within %d", p.DontStartWithin, p.StartWithin)
	}
	return nil
}

type Upgrade struct {
	// Negative when the upgrade is disabled.
	Height    abi.ChainEpoch
	Network   network.Version
	Expensive bool
	Migration MigrationFunc

	// Ordered by decreasing StartWithin.
	PreMigrations []PreMigration
}

func (u *Upgrade) validate() error {
	if u.Network <= 0 {
		return xerrors.Errorf("network version %d is not positive", u.Network)
	}
	for i, p := range u.PreMigrations {
		if err := p.validate(); err != nil {
			return xerrors.Errorf("pre-migration %d: %w", i, err)
		}
		if i > 0 && u.PreMigrations[i-1].StartWithin < p.StartWithin {
			return xerrors.Errorf("pre-migration %d starts before pre-migration %d", i, i-1)
		}
	}
	return nil
}

// Upgrades in chain order.
type UpgradeSchedule []Upgrade

func (us UpgradeSchedule) Validate() error {
	for i := range us {
		u := &us[i]
		if err := u.validate(); err != nil {
			return xerrors.Errorf("upgrade %d to %d: %w", i, u.Network, err)
		}
		if i == 0 {
			continue
		}
		prev := &us[i-1]
		if u.Network < prev.Network {
			return xerrors.Errorf("upgrade %d downgrades from version %d to %d", i, prev.Network, u.Network)
		}
		// A disabled upgrade places no bound on the next height.
		if prev.Height >= 0 && u.Height <= prev.Height {
			return xerrors.Errorf("upgrade %d at height %d does not follow upgrade %d at height %d", i, u.Height, i-1, prev.Height)
		}
	}
	return nil
}
