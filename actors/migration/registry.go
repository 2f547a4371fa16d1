package migration

import (
	"context"

	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

// Constructs the migration for one actor kind, given the kind's code CID in the new manifest.
type UnitFactory func(newCode cid.Cid) ActorMigration

// Factory for actor kinds whose state layout is unchanged by an upgrade.
func Identity(newCode cid.Cid) ActorMigration {
	return CodeMigrator{OutCodeCID: newCode}
}

// One actor kind's place in a migration.
type RegistryEntry struct {
	Name    string
	OldCode cid.Cid
	NewCode cid.Cid
	Unit    ActorMigration
}

// Maps prior version code CIDs to migration functions.
// A registry is built once per migration and never modified.
type Registry struct {
	entries []RegistryEntry
	byCode  map[cid.Cid]int
}

// Pairs the entries of two manifests by actor kind name and assigns each old code CID its migration.
// Every kind of the old manifest must also be in the new manifest and have a declared unit.
// The new manifest may name kinds the old one does not, for actors the upgrade introduces.
func BuildRegistry(oldManifest, newManifest *manifest.Manifest, units map[string]UnitFactory) (*Registry, error) {
	r := &Registry{
		byCode: make(map[cid.Cid]int),
	}
	for _, e := range oldManifest.Entries() {
		newCode, ok := newManifest.Get(e.Name)
		if !ok {
			return nil, &Error{Kind: ErrUnknownActorCode,
				Err: xerrors.Errorf("actor %s (code %s) has no entry in the new manifest", e.Name, e.Code)}
		}
		factory, ok := units[e.Name]
		if !ok {
			return nil, &Error{Kind: ErrUnknownActorCode,
				Err: xerrors.Errorf("actor %s (code %s) has no registered migration", e.Name, e.Code)}
		}
		unit := factory(newCode)
		if unit.MigratedCodeCID() != newCode {
			return nil, xerrors.Errorf("migration for %s produces code %s, but the new manifest has %s",
				e.Name, unit.MigratedCodeCID(), newCode)
		}
		r.byCode[e.Code] = len(r.entries)
		r.entries = append(r.entries, RegistryEntry{
			Name:    e.Name,
			OldCode: e.Code,
			NewCode: newCode,
			Unit:    unit,
		})
	}
	for name := range units {
		if _, ok := oldManifest.Get(name); !ok {
			return nil, xerrors.Errorf("migration registered for %s, which is not in the old manifest", name)
		}
	}
	return r, nil
}

// Loads both manifests from the store and builds the registry pairing them.
func LoadRegistry(ctx context.Context, store adt.Store, oldManifestCid, newManifestCid cid.Cid, units map[string]UnitFactory) (*Registry, error) {
	oldManifest, err := manifest.LoadManifest(ctx, store, oldManifestCid)
	if err != nil {
		return nil, ClassifyStoreError(xerrors.Errorf("loading old manifest: %w", err), ErrUnknownActorCode)
	}
	newManifest, err := manifest.LoadManifest(ctx, store, newManifestCid)
	if err != nil {
		return nil, ClassifyStoreError(xerrors.Errorf("loading new manifest: %w", err), ErrUnknownActorCode)
	}
	return BuildRegistry(oldManifest, newManifest, units)
}

// Returns the entry for an old code CID.
func (r *Registry) Lookup(oldCode cid.Cid) (RegistryEntry, bool) {
	i, ok := r.byCode[oldCode]
	if !ok {
		return RegistryEntry{}, false
	}
	return r.entries[i], true
}

// Returns the entries in old manifest order.
func (r *Registry) Entries() []RegistryEntry {
	out := make([]RegistryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Registry) Len() int {
	return len(r.entries)
}
