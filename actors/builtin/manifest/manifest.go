package manifest

import (
	"context"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

// The only manifest version understood by this package.
const ManifestVersion = 1

// A manifest names the code CID of each built-in actor kind for one actors version.
// It is the root object of an actors bundle.
type Manifest struct {
	Version uint64 // this is really u32, but cbor-gen can't deal with it
	Data    cid.Cid

	entries []ManifestEntry
	byName  map[string]cid.Cid
	byCode  map[cid.Cid]string
}

type ManifestEntry struct {
	Name string
	Code cid.Cid
}

type ManifestData struct {
	Entries []ManifestEntry
}

// Loads and returns the manifest with the given CID.
func LoadManifest(ctx context.Context, store adt.Store, mfCid cid.Cid) (*Manifest, error) {
	var mf Manifest
	if err := store.Get(ctx, mfCid, &mf); err != nil {
		return nil, xerrors.Errorf("failed to load manifest %s: %w", mfCid, err)
	}
	if err := mf.Load(ctx, store); err != nil {
		return nil, err
	}
	return &mf, nil
}

// Builds a manifest directly from the CID of its data.
// The system actor records only the manifest data, so this is how the manifest of a live
// state tree is recovered.
func LoadManifestData(ctx context.Context, store adt.Store, dataCid cid.Cid) (*Manifest, error) {
	mf := Manifest{Version: ManifestVersion, Data: dataCid}
	if err := mf.Load(ctx, store); err != nil {
		return nil, err
	}
	return &mf, nil
}

// Writes a manifest with the given entries, in order, and returns it with its CID.
func PutManifest(ctx context.Context, store adt.Store, entries []ManifestEntry) (*Manifest, cid.Cid, error) {
	dataCid, err := store.Put(ctx, &ManifestData{Entries: entries})
	if err != nil {
		return nil, cid.Undef, xerrors.Errorf("failed to write manifest data: %w", err)
	}
	mf := Manifest{Version: ManifestVersion, Data: dataCid}
	mfCid, err := store.Put(ctx, &mf)
	if err != nil {
		return nil, cid.Undef, xerrors.Errorf("failed to write manifest: %w", err)
	}
	if err := mf.Load(ctx, store); err != nil {
		return nil, cid.Undef, err
	}
	return &mf, mfCid, nil
}

// Loads the manifest data and indexes its entries.
// Fails if the version is unknown or if a name or code appears more than once.
func (m *Manifest) Load(ctx context.Context, store adt.Store) error {
	if m.Version != ManifestVersion {
		return xerrors.Errorf("unknown manifest version %d", m.Version)
	}

	var data ManifestData
	if err := store.Get(ctx, m.Data, &data); err != nil {
		return xerrors.Errorf("failed to load manifest data %s: %w", m.Data, err)
	}

	m.byName = make(map[string]cid.Cid, len(data.Entries))
	m.byCode = make(map[cid.Cid]string, len(data.Entries))
	for _, e := range data.Entries {
		if _, ok := m.byName[e.Name]; ok {
			return xerrors.Errorf("duplicate manifest entry for %s", e.Name)
		}
		if other, ok := m.byCode[e.Code]; ok {
			return xerrors.Errorf("manifest entries %s and %s share code %s", other, e.Name, e.Code)
		}
		m.byName[e.Name] = e.Code
		m.byCode[e.Code] = e.Name
	}
	m.entries = data.Entries
	return nil
}

// Returns the code CID for an actor kind name.
func (m *Manifest) Get(name string) (cid.Cid, bool) {
	c, ok := m.byName[name]
	return c, ok
}

// Returns the actor kind name for a code CID.
func (m *Manifest) GetActorName(code cid.Cid) (string, bool) {
	name, ok := m.byCode[code]
	return name, ok
}

// Whether the code CID names one of this manifest's actor kinds.
func (m *Manifest) IsBuiltinCode(code cid.Cid) bool {
	_, ok := m.byCode[code]
	return ok
}

// Returns the entries in the order they were declared.
func (m *Manifest) Entries() []ManifestEntry {
	out := make([]ManifestEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// this is a flat tuple, so we need to write these by hand
func (d *ManifestData) UnmarshalCBOR(r io.Reader) error {
	*d = ManifestData{}

	cr := cbg.NewCborReader(r)

	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return err
	}
	if maj != cbg.MajArray {
		return fmt.Errorf("cbor input should be of type array")
	}
	if extra > cbg.MaxLength {
		return fmt.Errorf("too many manifest entries")
	}

	entries := int(extra)
	d.Entries = make([]ManifestEntry, 0, entries)

	for i := 0; i < entries; i++ {
		entry := ManifestEntry{}
		if err := entry.UnmarshalCBOR(cr); err != nil {
			return xerrors.Errorf("error unmarshaling manifest entry: %w", err)
		}

		d.Entries = append(d.Entries, entry)
	}

	return nil
}

func (d *ManifestData) MarshalCBOR(w io.Writer) error {
	if d == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}

	cw := cbg.NewCborWriter(w)

	if len(d.Entries) > cbg.MaxLength {
		return fmt.Errorf("too many manifest entries")
	}

	if err := cw.WriteMajorTypeHeader(cbg.MajArray, uint64(len(d.Entries))); err != nil {
		return err
	}

	for _, v := range d.Entries {
		if err := v.MarshalCBOR(cw); err != nil {
			return err
		}
	}

	return nil
}
