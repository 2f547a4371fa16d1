package main

import (
	gen "github.com/whyrusleeping/cbor-gen"

	init_ "github.com/filecoin-project/go-state-migration/actors/builtin/init"
	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/actors/builtin/system"
	"github.com/filecoin-project/go-state-migration/actors/states"
)

func main() {
	// State tree
	if err := gen.WriteTupleEncodersToFile("./actors/states/cbor_gen.go", "states",
		states.Actor{},
		states.StateRoot{},
		states.StateInfo0{},
	); err != nil {
		panic(err)
	}

	// Bundles
	if err := gen.WriteTupleEncodersToFile("./actors/builtin/manifest/cbor_gen.go", "manifest",
		manifest.Manifest{},
		manifest.ManifestEntry{},
	); err != nil {
		panic(err)
	}

	// Actors
	if err := gen.WriteTupleEncodersToFile("./actors/builtin/system/cbor_gen.go", "system",
		// actor state
		system.State{},
	); err != nil {
		panic(err)
	}

	if err := gen.WriteTupleEncodersToFile("./actors/builtin/init/cbor_gen.go", "init",
		// actor state
		init_.State{},
	); err != nil {
		panic(err)
	}
}
