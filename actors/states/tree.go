package states

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

// Value type of the top level of the state tree.
// Represents the on-chain state of a single actor.
type Actor struct {
	Code       cid.Cid // CID representing the code associated with the actor
	Head       cid.Cid // CID of the head state object for the actor
	CallSeqNum uint64  // CallSeqNum for the next message to be received by the actor (non-zero for accounts only)
	Balance    big.Int // Token balance of the actor
	// The actor's delegated (f4) address, if it has one.
	// Only representable in state trees of version 5 and later.
	Address *address.Address
}

// The encoding of an actor in a version 4 tree, which has no delegated address.
type actorV4 Actor

// A specialization of a map of ID-addresses to actor heads.
type Tree struct {
	Map     *adt.Map
	Store   adt.Store
	Version StateTreeVersion
}

// Initializes a new, empty state tree backed by a store.
func NewTree(store adt.Store, version StateTreeVersion) (*Tree, error) {
	if err := checkTreeVersion(version); err != nil {
		return nil, err
	}
	emptyMap, err := adt.MakeEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, err
	}
	return &Tree{
		Map:     emptyMap,
		Store:   store,
		Version: version,
	}, nil
}

// Loads a tree from a root CID and store.
func LoadTree(s adt.Store, r cid.Cid, version StateTreeVersion) (*Tree, error) {
	if err := checkTreeVersion(version); err != nil {
		return nil, err
	}
	m, err := adt.AsMap(s, r, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, err
	}
	return &Tree{
		Map:     m,
		Store:   s,
		Version: version,
	}, nil
}

// Writes the tree root node to the store, and returns its CID.
func (t *Tree) Flush() (cid.Cid, error) {
	return t.Map.Root()
}

// Loads the state associated with an address.
func (t *Tree) GetActor(addr address.Address) (*Actor, bool, error) {
	if addr.Protocol() != address.ID {
		return nil, false, xerrors.Errorf("non-ID address %v invalid as actor key", addr)
	}
	var actor Actor
	found, err := t.Map.Get(abi.AddrKey(addr), t.decodeTarget(&actor))
	return &actor, found, err
}

// Sets the state associated with an address, overwriting if it already present.
func (t *Tree) SetActor(addr address.Address, actor *Actor) error {
	if addr.Protocol() != address.ID {
		return xerrors.Errorf("non-ID address %v invalid as actor key", addr)
	}
	if t.Version < StateTreeVersion5 {
		if actor.Address != nil {
			return xerrors.Errorf("actor %v has delegated address %v, not representable in tree version %d",
				addr, *actor.Address, t.Version)
		}
		return t.Map.Put(abi.AddrKey(addr), (*actorV4)(actor))
	}
	return t.Map.Put(abi.AddrKey(addr), actor)
}

// Removes the actor associated with an address, returning whether it was present.
func (t *Tree) DeleteActor(addr address.Address) (bool, error) {
	if addr.Protocol() != address.ID {
		return false, xerrors.Errorf("non-ID address %v invalid as actor key", addr)
	}
	return t.Map.TryDelete(abi.AddrKey(addr))
}

// Traverses all entries in the tree.
// The actor passed to the callback is only valid until the callback returns.
func (t *Tree) ForEach(fn func(addr address.Address, actor *Actor) error) error {
	var val Actor
	return t.Map.ForEach(t.decodeTarget(&val), func(key string) error {
		addr, err := address.NewFromBytes([]byte(key))
		if err != nil {
			return err
		}
		return fn(addr, &val)
	})
}

// Traverses all keys in the tree, without decoding the actor states.
func (t *Tree) ForEachKey(fn func(addr address.Address) error) error {
	return t.Map.ForEach(nil, func(key string) error {
		addr, err := address.NewFromBytes([]byte(key))
		if err != nil {
			return err
		}
		return fn(addr)
	})
}

func (t *Tree) decodeTarget(actor *Actor) cbg.CBORUnmarshaler {
	if t.Version < StateTreeVersion5 {
		return (*actorV4)(actor)
	}
	return actor
}

func checkTreeVersion(version StateTreeVersion) error {
	if version != StateTreeVersion4 && version != StateTreeVersion5 {
		return xerrors.Errorf("unsupported state tree version %d", version)
	}
	return nil
}
