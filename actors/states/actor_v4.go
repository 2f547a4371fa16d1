package states

import (
	"fmt"
	"io"

	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"
)

// Version 4 trees encode actors as the 4-tuple [Code, Head, CallSeqNum, Balance].
// These are written by hand because the generator only emits the current layout.

func (t *actorV4) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}

	cw := cbg.NewCborWriter(w)
	if err := cw.WriteMajorTypeHeader(cbg.MajArray, 4); err != nil {
		return err
	}
	if err := cbg.WriteCid(cw, t.Code); err != nil {
		return xerrors.Errorf("failed to write cid field t.Code: %w", err)
	}
	if err := cbg.WriteCid(cw, t.Head); err != nil {
		return xerrors.Errorf("failed to write cid field t.Head: %w", err)
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajUnsignedInt, t.CallSeqNum); err != nil {
		return err
	}
	return t.Balance.MarshalCBOR(cw)
}

func (t *actorV4) UnmarshalCBOR(r io.Reader) (err error) {
	*t = actorV4{}

	cr := cbg.NewCborReader(r)
	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return err
	}
	defer func() {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
	}()
	if maj != cbg.MajArray {
		return fmt.Errorf("cbor input should be of type array")
	}
	if extra != 4 {
		return fmt.Errorf("cbor input had wrong number of fields")
	}

	if t.Code, err = cbg.ReadCid(cr); err != nil {
		return xerrors.Errorf("failed to read cid field t.Code: %w", err)
	}
	if t.Head, err = cbg.ReadCid(cr); err != nil {
		return xerrors.Errorf("failed to read cid field t.Head: %w", err)
	}

	maj, extra, err = cr.ReadHeader()
	if err != nil {
		return err
	}
	if maj != cbg.MajUnsignedInt {
		return fmt.Errorf("wrong type for uint64 field")
	}
	t.CallSeqNum = extra

	if err := t.Balance.UnmarshalCBOR(cr); err != nil {
		return xerrors.Errorf("unmarshaling t.Balance: %w", err)
	}
	return nil
}
