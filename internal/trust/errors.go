package trust

import (
	"errors"
	"fmt"
)

// Kind classifies reconciliation failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindStoreAccess: reading the store failed.
	KindStoreAccess
	// KindNotFound: the certificate has no trust settings.
	KindNotFound
	// KindResourceCreation: an entry for a policy could not be built.
	KindResourceCreation
	// KindWriteBack: writing the settings failed.
	KindWriteBack
	// KindInvalidInput: the policy action list is malformed.
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindStoreAccess:
		return "store access"
	case KindNotFound:
		return "not found"
	case KindResourceCreation:
		return "resource creation"
	case KindWriteBack:
		return "write back"
	case KindInvalidInput:
		return "invalid input"
	}
	return "unknown"
}

// Error is returned by Reconcile and by Store implementations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the Kind sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrStoreAccess      = &Error{Kind: KindStoreAccess}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrResourceCreation = &Error{Kind: KindResourceCreation}
	ErrWriteBack        = &Error{Kind: KindWriteBack}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
)

// NewError wraps err with a kind and the failing operation.
func NewError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func invalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Op: "validate actions", Err: fmt.Errorf(format, args...)}
}
