package sql

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAllowed is returned when the session lacks the
	// permission a statement needs
	ErrNotAllowed = errors.New("not allowed to do this")
	// ErrNsEmpty is returned when no namespace is selected
	ErrNsEmpty = errors.New("specify a namespace to use")
	// ErrDbEmpty is returned when no database is selected
	ErrDbEmpty = errors.New("specify a database to use")
	// ErrRecordExists is returned when inserting a record
	// that already exists
	ErrRecordExists = errors.New("database record already exists")
	// ErrInvalidRecord is returned for malformed record IDs
	// or documents
	ErrInvalidRecord = errors.New("invalid record")
	// ErrInvalidStatement is returned for statements that
	// cannot be computed
	ErrInvalidStatement = errors.New("invalid statement")
)

// ThrownError is an error raised on purpose by a query.
// Its message is returned to the caller unchanged.
type ThrownError struct {
	Message string
}

// Error implements error
func (err *ThrownError) Error() string {
	return err.Message
}

// Thrown returns a ThrownError with message
func Thrown(message string) error {
	return &ThrownError{Message: message}
}

// IsThrown returns true if err was raised by a THROW statement
func IsThrown(err error) bool {
	var thrown *ThrownError

	return errors.As(err, &thrown)
}

func invalidRecord(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, fmt.Sprintf(format, args...))
}
