package dbmerrors

import "fmt"

// NoRecordFound - Custom error to inform that no live record was found for a key
type NoRecordFound struct {
	msg string
}

// Error - Used to notify that no record was found
func (E NoRecordFound) Error() string {
	if E.msg == "" {
		return "no record found"
	}
	return E.msg
}

// Is - Matches any NoRecordFound regardless of message
func (E NoRecordFound) Is(target error) bool {
	_, ok := target.(NoRecordFound)
	return ok
}

// DuplicateKey - Custom error to inform that an insert targeted a key that is already live in the database
type DuplicateKey struct {
	msg string
}

// Error - Used to notify that the key already exists
func (E DuplicateKey) Error() string {
	if E.msg == "" {
		return "key already exists"
	}
	return E.msg
}

// Is - Matches any DuplicateKey regardless of message
func (E DuplicateKey) Is(target error) bool {
	_, ok := target.(DuplicateKey)
	return ok
}

// InvalidArgument - Custom error to inform that a key, value or configuration parameter was rejected
type InvalidArgument struct {
	msg string
}

// Error - Used to notify about an invalid argument
func (E InvalidArgument) Error() string {
	if E.msg == "" {
		return "invalid argument"
	}
	return E.msg
}

// Is - Matches any InvalidArgument regardless of message
func (E InvalidArgument) Is(target error) bool {
	_, ok := target.(InvalidArgument)
	return ok
}

// FormatError - Custom error to inform that on-disk data could not be parsed, or that a value does not fit
// in its fixed width field
type FormatError struct {
	msg string
}

// Error - Used to notify about a format or corruption problem
func (E FormatError) Error() string {
	if E.msg == "" {
		return "malformed database file"
	}
	return E.msg
}

// Is - Matches any FormatError regardless of message
func (E FormatError) Is(target error) bool {
	_, ok := target.(FormatError)
	return ok
}

// LockTimeout - Custom error to inform that a file lock could not be acquired in time
type LockTimeout struct {
	msg string
}

// Error - Used to notify that acquiring a lock timed out
func (L LockTimeout) Error() string {
	if L.msg == "" {
		return "timeout while acquiring lock"
	}
	return L.msg
}

// Is - Matches any LockTimeout regardless of message
func (L LockTimeout) Is(target error) bool {
	_, ok := target.(LockTimeout)
	return ok
}

// NewNoRecordFound - Returns a NoRecordFound with a formatted message
func NewNoRecordFound(format string, a ...any) NoRecordFound {
	return NoRecordFound{msg: fmt.Sprintf(format, a...)}
}

// NewDuplicateKey - Returns a DuplicateKey with a formatted message
func NewDuplicateKey(format string, a ...any) DuplicateKey {
	return DuplicateKey{msg: fmt.Sprintf(format, a...)}
}

// NewInvalidArgument - Returns an InvalidArgument with a formatted message
func NewInvalidArgument(format string, a ...any) InvalidArgument {
	return InvalidArgument{msg: fmt.Sprintf(format, a...)}
}

// NewFormatError - Returns a FormatError with a formatted message
func NewFormatError(format string, a ...any) FormatError {
	return FormatError{msg: fmt.Sprintf(format, a...)}
}

// NewLockTimeout - Returns a LockTimeout with a formatted message
func NewLockTimeout(format string, a ...any) LockTimeout {
	return LockTimeout{msg: fmt.Sprintf(format, a...)}
}
