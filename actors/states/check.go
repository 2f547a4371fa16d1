package states

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	init_ "github.com/filecoin-project/go-state-migration/actors/builtin/init"
	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/actors/builtin/system"
)

// Within this code, Go errors are not expected, but are often converted to messages so that execution
// can continue to find more errors rather than fail with no insight.
// Only errors thar are particularly troublesome to recover from should propagate as Go errors.
//
// The manifest names the code CIDs the tree may contain. An expected balance total with a nil
// value skips the balance check.
func CheckStateInvariants(tree *Tree, mf *manifest.Manifest, expectedBalanceTotal abi.TokenAmount) (*builtin.MessageAccumulator, error) {
	acc := &builtin.MessageAccumulator{}
	totalFIl := big.Zero()
	var initSummary *init_.StateSummary
	var systemState *system.State
	delegated := map[addr.Address]addr.Address{}

	if err := tree.ForEach(func(key addr.Address, actor *Actor) error {
		acc := acc.WithPrefix("%v ", key) // Intentional shadow
		if key.Protocol() != addr.ID {
			acc.Addf("unexpected address protocol in state tree root: %v", key)
		}
		totalFIl = big.Add(totalFIl, actor.Balance)
		if actor.Balance.LessThan(big.Zero()) {
			acc.Addf("negative balance %v", actor.Balance)
		}
		if actor.Address != nil {
			if actor.Address.Protocol() != addr.Delegated {
				acc.Addf("actor address %v is not a delegated address", *actor.Address)
			}
			delegated[*actor.Address] = key
		}

		name, ok := mf.GetActorName(actor.Code)
		if !ok {
			acc.Addf("code %v is not a built-in actor of the manifest", actor.Code)
			return nil
		}

		switch name {
		case builtin.SystemActorName:
			acc.Require(key == builtin.SystemActorAddr, "system actor at unexpected address")
			var st system.State
			if err := tree.Store.Get(tree.Store.Context(), actor.Head, &st); err != nil {
				return xerrors.Errorf("failed to load system actor state: %w", err)
			}
			systemState = &st
		case builtin.InitActorName:
			acc.Require(key == builtin.InitActorAddr, "init actor at unexpected address")
			var st init_.State
			if err := tree.Store.Get(tree.Store.Context(), actor.Head, &st); err != nil {
				return xerrors.Errorf("failed to load init actor state: %w", err)
			}
			summary, msgs := init_.CheckStateInvariants(&st, tree.Store)
			acc.WithPrefix("init: ").AddAll(msgs)
			initSummary = summary
		case builtin.EthereumAddressManagerActorName:
			acc.Require(key == builtin.EthereumAddressManagerActorAddr, "eam actor at unexpected address")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if systemState == nil {
		acc.Add("system actor missing")
	} else {
		acc.Require(systemState.BuiltinActors == mf.Data, "system actor records manifest data %v, expected %v",
			systemState.BuiltinActors, mf.Data)
	}

	if initSummary == nil {
		acc.Add("init actor missing")
	} else {
		// Every delegated address carried by an actor must resolve to that actor.
		for a, id := range delegated {
			mapped, ok := initSummary.AddrIDs[a]
			if !ok {
				acc.Addf("delegated address %v of %v is not in the init address map", a, id)
				continue
			}
			idAddr, err := addr.NewIDAddress(uint64(mapped))
			if err != nil {
				return nil, err
			}
			acc.Require(idAddr == id, "delegated address %v maps to %v, carried by %v", a, idAddr, id)
		}
	}

	if expectedBalanceTotal.Int != nil {
		acc.Require(totalFIl.Equals(expectedBalanceTotal), "total token balance is %v, expected %v", totalFIl, expectedBalanceTotal)
	}

	return acc, nil
}
