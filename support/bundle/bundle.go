package bundle

import (
	"context"
	"io"
	"os"

	block "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"
	car "github.com/ipld/go-car"
	carutil "github.com/ipld/go-car/util"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

// Loads an actors bundle from a CAR stream into the block store.
// The CAR must have a single root, the manifest, and every actor kind it names must be well formed.
func LoadBundle(ctx context.Context, bs ipldcbor.IpldBlockstore, r io.Reader) (cid.Cid, *manifest.Manifest, error) {
	hdr, err := car.LoadCar(ctx, bs, r)
	if err != nil {
		return cid.Undef, nil, xerrors.Errorf("error loading bundle: %w", err)
	}
	if len(hdr.Roots) != 1 {
		return cid.Undef, nil, xerrors.Errorf("expected one root in bundle, found %d", len(hdr.Roots))
	}

	mfCid := hdr.Roots[0]
	mf, err := manifest.LoadManifest(ctx, adt.WrapBlockStore(ctx, bs), mfCid)
	if err != nil {
		return cid.Undef, nil, xerrors.Errorf("error loading bundle manifest: %w", err)
	}
	return mfCid, mf, nil
}

// Loads an actors bundle from a CAR file.
func LoadBundleFile(ctx context.Context, bs ipldcbor.IpldBlockstore, path string) (cid.Cid, *manifest.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return cid.Undef, nil, xerrors.Errorf("error opening bundle: %w", err)
	}
	defer f.Close() //nolint

	return LoadBundle(ctx, bs, f)
}

// Writes a CAR with the manifest as its root, followed by the given blocks.
func WriteBundle(w io.Writer, mfCid cid.Cid, blocks []block.Block) error {
	hdr := &car.CarHeader{
		Roots:   []cid.Cid{mfCid},
		Version: 1,
	}
	if err := car.WriteHeader(hdr, w); err != nil {
		return xerrors.Errorf("error writing bundle header: %w", err)
	}
	for _, blk := range blocks {
		if err := carutil.LdWrite(w, blk.Cid().Bytes(), blk.RawData()); err != nil {
			return xerrors.Errorf("error writing block %s: %w", blk.Cid(), err)
		}
	}
	return nil
}
