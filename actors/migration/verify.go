package migration

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/actors/states"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

// Checks the output of a migration. Verification only reads; any failed rule is an
// ErrVerificationFailure, since it means the migration logic is wrong rather than its input.
type Verifier struct {
	// Manifest of the actors version migrated to.
	NewManifest *manifest.Manifest
	// Version of the migrated tree.
	TreeVersion states.StateTreeVersion
	// Addresses a post-migrator removes, which are exempt from the totality check.
	Removed []address.Address
	// Root the migration is known to produce, if any.
	ExpectedRoot cid.Cid
}

func (v *Verifier) Verify(ctx context.Context, store adt.Store, actorsIn *states.Tree, actorsRootOut cid.Cid) error {
	acc := &builtin.MessageAccumulator{}

	if v.ExpectedRoot.Defined() && v.ExpectedRoot != actorsRootOut {
		acc.Addf("migrated root %s does not match expected root %s", actorsRootOut, v.ExpectedRoot)
	}

	// The flushed root must reload to the same tree.
	actorsOut, err := states.LoadTree(store, actorsRootOut, v.TreeVersion)
	if err != nil {
		return ClassifyStoreError(xerrors.Errorf("reloading migrated tree %s: %w", actorsRootOut, err), ErrVerificationFailure)
	}
	reflushed, err := actorsOut.Flush()
	if err != nil {
		return WithKind(ErrStore, err)
	}
	acc.Require(reflushed == actorsRootOut, "migrated tree %s reloads as %s", actorsRootOut, reflushed)

	removed := make(map[address.Address]struct{}, len(v.Removed))
	for _, a := range v.Removed {
		removed[a] = struct{}{}
	}

	// Every input actor survives, with its balance and sequence number.
	totalIn := big.Zero()
	if err := actorsIn.ForEach(func(a address.Address, actorIn *states.Actor) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		totalIn = big.Add(totalIn, actorIn.Balance)
		out, found, err := actorsOut.GetActor(a)
		if err != nil {
			return err
		}
		if _, ok := removed[a]; ok {
			acc.Require(!found, "%v declared removed but still present", a)
			return nil
		}
		if !found {
			acc.Addf("%v missing from migrated tree", a)
			return nil
		}
		acc.Require(out.Balance.Equals(actorIn.Balance), "%v balance changed from %v to %v", a, actorIn.Balance, out.Balance)
		acc.Require(out.CallSeqNum == actorIn.CallSeqNum, "%v call sequence number changed from %d to %d", a, actorIn.CallSeqNum, out.CallSeqNum)
		return nil
	}); err != nil {
		return ClassifyStoreError(err, ErrStore)
	}

	msgs, err := states.CheckStateInvariants(actorsOut, v.NewManifest, totalIn)
	if err != nil {
		return ClassifyStoreError(xerrors.Errorf("checking migrated state: %w", err), ErrStore)
	}
	acc.AddAll(msgs)

	if !acc.IsEmpty() {
		return &Error{Kind: ErrVerificationFailure, Err: xerrors.Errorf("%d invariant(s) violated:\n%s", len(acc.Messages()), acc.String())}
	}
	return nil
}
