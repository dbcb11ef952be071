package remotestore

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// Kind classifies a remote failure.
type Kind int

const (
	// KindUnreachable covers network failures and timeouts. Retrying later can succeed.
	KindUnreachable Kind = iota
	// KindAuth is an anonymous caller or a rejected principal.
	KindAuth
	// KindValidation is a payload the store refuses to persist.
	KindValidation
	// KindConflict is a write that violates a constraint, such as a card whose session does not exist.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified remote store failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrAnonymous is returned for calls without an authenticated user.
var ErrAnonymous = errors.New("anonymous caller")

// NewError wraps err with kind for op.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of a remote error. Unclassified errors count as unreachable.
func KindOf(err error) Kind {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind
	}
	return KindUnreachable
}

// IsRetryable reports whether retrying the same call later can succeed.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindUnreachable
}

// IsRejected reports whether the store refused the call; blind retries will not fix it.
func IsRejected(err error) bool {
	return err != nil && KindOf(err) != KindUnreachable
}

// MySQL server error numbers the store maps to rejections.
const (
	mysqlErrAccessDenied       = 1045
	mysqlErrTableAccessDenied  = 1142
	mysqlErrDuplicateEntry     = 1062
	mysqlErrNoReferencedRow    = 1452
	mysqlErrRowIsReferenced    = 1451
	mysqlErrDataTooLong        = 1406
	mysqlErrTruncatedValue     = 1366
	mysqlErrBadNull            = 1048
	mysqlErrInvalidJSONText    = 3140
	mysqlErrCheckConstraint    = 3819
	mysqlErrDBAccessDenied     = 1044
	mysqlErrSpecificAccessDeny = 1227
)

// classify maps a driver error to a remote Error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return err
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrAccessDenied, mysqlErrTableAccessDenied, mysqlErrDBAccessDenied, mysqlErrSpecificAccessDeny:
			return NewError(KindAuth, op, err)
		case mysqlErrDuplicateEntry, mysqlErrNoReferencedRow, mysqlErrRowIsReferenced:
			return NewError(KindConflict, op, err)
		case mysqlErrDataTooLong, mysqlErrTruncatedValue, mysqlErrBadNull, mysqlErrInvalidJSONText, mysqlErrCheckConstraint:
			return NewError(KindValidation, op, err)
		}
		return NewError(KindUnreachable, op, err)
	}

	// Network errors, bad connections and timeouts land here too.
	return NewError(KindUnreachable, op, err)
}
