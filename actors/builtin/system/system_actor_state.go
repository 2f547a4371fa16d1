package system

import (
	cid "github.com/ipfs/go-cid"
	xerrors "golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

type State struct {
	BuiltinActors cid.Cid // ManifestData
}

// Constructs a system actor state recording an empty manifest.
func ConstructState(store adt.Store) (*State, error) {
	empty, err := store.Put(store.Context(), &manifest.ManifestData{})
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty manifest: %w", err)
	}

	return &State{BuiltinActors: empty}, nil
}

// Loads the manifest of built-in actors this state records.
func (s *State) LoadManifest(store adt.Store) (*manifest.Manifest, error) {
	return manifest.LoadManifestData(store.Context(), store, s.BuiltinActors)
}
