package media

import (
	"errors"
	"fmt"
)

type FailureKind int

const (
	UnknownFailure FailureKind = iota
	ExtractionFailure
	ScoringFailure
	PersistenceFailure
	NotFound
	RangeParse
)

func (k FailureKind) String() string {
	switch k {
	case ExtractionFailure:
		return "extraction"
	case ScoringFailure:
		return "scoring"
	case PersistenceFailure:
		return "persistence"
	case NotFound:
		return "not found"
	case RangeParse:
		return "range parse"
	default:
		return "unknown"
	}
}

// ErrNotFound is returned by the store when a video record does not exist.
var ErrNotFound = &Failure{kind: NotFound, error: errors.New("video not found")}

// Failure is an error tagged with the pipeline stage or boundary that produced it.
type Failure struct {
	error
	kind FailureKind
}

func NewFailure(kind FailureKind, err error) *Failure {
	return &Failure{error: err, kind: kind}
}

func Failuref(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{error: fmt.Errorf(format, args...), kind: kind}
}

func (f *Failure) Kind() FailureKind { return f.kind }

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure: %s", f.kind, f.error.Error())
}

func (f *Failure) Unwrap() error { return f.error }

// Is matches any Failure of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found failure regardless of message.
func (f *Failure) Is(target error) bool {
	var other *Failure
	if errors.As(target, &other) {
		return other.kind == f.kind
	}
	return false
}

// KindOf returns the kind of the first Failure in err's chain.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.kind
	}
	return UnknownFailure
}
