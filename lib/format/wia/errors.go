package wia

import "fmt"

// Kind classifies a decoder failure so callers can branch on it with
// errors.Is without parsing error strings.
type Kind int

const (
	// KindUnsupportedFormat covers bad magic, unknown compression/disc
	// types, and a version below the read-compat floor.
	KindUnsupportedFormat Kind = iota
	// KindCorrupt covers hash mismatches, malformed tables, unexpected
	// EOF inside a group, and rejected compressed data.
	KindCorrupt
	// KindOutOfRange covers a requested byte range that maps to no
	// covered region.
	KindOutOfRange
	// KindIOError covers a failed read of the underlying file.
	KindIOError
	// KindUnsupported covers a Wii-decrypted read on a non-Wii image or
	// outside a partition's data region.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedFormat:
		return "unsupported format"
	case KindCorrupt:
		return "corrupt"
	case KindOutOfRange:
		return "out of range"
	case KindIOError:
		return "io error"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// DecodeError is the sum-type error Open and every fallible Decoder
// method return (ReconstructSector returns plain errors). A *DecodeError compares equal under errors.Is to the
// sentinel matching its Kind (ErrUnsupportedFormat, ErrCorrupt, ...).
type DecodeError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wia: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("wia: %s: %s", e.Op, e.Kind)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's Kind, so callers can
// write errors.Is(err, wia.ErrCorrupt) regardless of the wrapped detail.
func (e *DecodeError) Is(target error) bool {
	sentinel, ok := target.(*sentinelError)
	return ok && sentinel.kind == e.Kind
}

// sentinelError is the concrete type behind Err{Kind} below; it exists
// only so errors.Is can match by Kind instead of by value identity.
type sentinelError struct{ kind Kind }

func (s *sentinelError) Error() string { return s.kind.String() }

// Sentinels for errors.Is comparisons against a returned *DecodeError.
var (
	ErrUnsupportedFormat error = &sentinelError{KindUnsupportedFormat}
	ErrCorrupt           error = &sentinelError{KindCorrupt}
	ErrOutOfRange        error = &sentinelError{KindOutOfRange}
	ErrIOError           error = &sentinelError{KindIOError}
	ErrUnsupported       error = &sentinelError{KindUnsupported}
)

func newErr(kind Kind, op string, err error) *DecodeError {
	return &DecodeError{Kind: kind, Op: op, Err: err}
}

func errUnsupportedFormat(op string, err error) *DecodeError { return newErr(KindUnsupportedFormat, op, err) }
func errCorrupt(op string, err error) *DecodeError           { return newErr(KindCorrupt, op, err) }
func errOutOfRange(op string, err error) *DecodeError        { return newErr(KindOutOfRange, op, err) }
func errIOError(op string, err error) *DecodeError           { return newErr(KindIOError, op, err) }
func errUnsupported(op string, err error) *DecodeError       { return newErr(KindUnsupported, op, err) }
