package testing

import (
	"fmt"

	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	mh "github.com/multiformats/go-multihash"
)

var defaultPrefix = cid.Prefix{
	Version:  1,
	Codec:    cid.DagCBOR,
	MhType:   mh.BLAKE2B_MIN + 31,
	MhLength: 32,
}

// Makes a CID from the hash of an input string, with the DAG-CBOR/blake2b prefix unless another is given.
func MakeCID(input string, prefix *cid.Prefix) cid.Cid {
	if prefix == nil {
		prefix = &defaultPrefix
	}
	c, err := prefix.Sum([]byte(input))
	if err != nil {
		panic(err)
	}
	return c
}

// Makes an identity-hashed raw code CID for a built-in actor kind at an actors version,
// in the same form as the code CIDs of bundles built for testing networks.
func MakeCodeCID(actorsVersion int, name string) cid.Cid {
	builder := cid.V1Builder{Codec: cid.Raw, MhType: mh.IDENTITY}
	c, err := builder.Sum([]byte(fmt.Sprintf("fil/%d/%s", actorsVersion, name)))
	if err != nil {
		panic(err)
	}
	return c
}

// NewCidForTestGetter returns a closure that returns a Cid unique to that invocation.
// The Cid is unique wrt the closure returned, not globally. You can use this function
// in tests.
func NewCidForTestGetter() func() cid.Cid {
	i := 31337
	return func() cid.Cid {
		obj, err := cbor.WrapObject([]int{i}, uint64(mh.BLAKE2B_MIN+31), -1)
		if err != nil {
			panic(err)
		}
		i++
		return obj.Cid()
	}
}
