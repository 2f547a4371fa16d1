package states

import (
	"github.com/ipfs/go-cid"
)

type StateTreeVersion uint64

const (
	// Actors v9: the actors HAMT maps ID addresses to 4-tuple actor records.
	StateTreeVersion4 StateTreeVersion = 4
	// Actors v10: actor records carry an optional delegated address.
	StateTreeVersion5 StateTreeVersion = 5
)

// The root object of a state tree, which versions the actors HAMT it points to.
type StateRoot struct {
	// State tree version.
	Version StateTreeVersion
	// Actors tree. The structure depends on the state root version.
	Actors cid.Cid
	// Info. The structure depends on the state root version.
	Info cid.Cid
}

// Info object of a state root. Empty in every version so far.
type StateInfo0 struct{}
