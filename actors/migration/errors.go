package migration

import (
	"context"

	format "github.com/ipfs/go-ipld-format"
	"golang.org/x/xerrors"
)

// Kinds of migration failure. Every failure is fatal to the run; the kind says where the defect lies.
var (
	// A block was missing from, or could not be read from or written to, the store.
	ErrStore = xerrors.New("store error")
	// An actor's code CID has no registered migration, or the registry could not be built.
	ErrUnknownActorCode = xerrors.New("unknown actor code")
	// An actor's own state could not be decoded.
	ErrMalformedActorState = xerrors.New("malformed actor state")
	// The migrated state failed a post-migration check, meaning the migration logic itself is wrong.
	ErrVerificationFailure = xerrors.New("verification failure")
)

// A migration failure of a known kind.
// Match the kind with xerrors.Is(err, ErrStore) etc.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Tags an error with a kind, unless it already carries one or reports cancellation.
func WithKind(kind error, err error) error {
	if err == nil {
		return nil
	}
	var kinded *Error
	if xerrors.As(err, &kinded) {
		return err
	}
	if xerrors.Is(err, context.Canceled) || xerrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// Tags an error from a store-backed structure. Missing blocks are store errors; anything else
// the structure reported is attributed to the fallback kind.
func ClassifyStoreError(err error, fallback error) error {
	if err == nil {
		return nil
	}
	if format.IsNotFound(err) {
		return WithKind(ErrStore, err)
	}
	return WithKind(fallback, err)
}

// Returns the kind of a migration error, or nil if it has none.
func KindOf(err error) error {
	var kinded *Error
	if xerrors.As(err, &kinded) {
		return kinded.Kind
	}
	return nil
}
