package utils

import (
	"github.com/gostonefire/filedbm/dbmerrors"
	"github.com/gostonefire/filedbm/internal/conf"
	"strings"
)

// ValidateField - Checks that a key or value is non-empty and free from the payload delimiters
//   - kind is used in the error message, typically "key" or "value"
//   - field is the string to check
//
// It returns an error of type dbmerrors.InvalidArgument if the field can not be stored
func ValidateField(kind, field string) (err error) {
	if field == "" {
		err = dbmerrors.NewInvalidArgument("%s can not be empty", kind)
		return
	}

	if i := strings.IndexByte(field, conf.Separator); i >= 0 {
		err = dbmerrors.NewInvalidArgument("%s can not contain '%c' (found at position %d)", kind, conf.Separator, i)
		return
	}

	if i := strings.IndexByte(field, conf.Newline); i >= 0 {
		err = dbmerrors.NewInvalidArgument("%s can not contain a newline (found at position %d)", kind, i)
		return
	}

	return
}

// ValidateWidth - Checks that a fixed field width is usable
func ValidateWidth(kind string, width int64) (err error) {
	if width <= 0 || width > conf.MaxFieldSize {
		err = dbmerrors.NewInvalidArgument("%s must be between 1 and %d, got %d", kind, conf.MaxFieldSize, width)
	}

	return
}
