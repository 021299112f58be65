package table

import "errors"

// Configuration errors are raised synchronously while a table type is defined
// or an instance is constructed. They signal a programming error.
var (
	ErrConfiguration = errors.New("table: invalid configuration")
	ErrUnknownField  = errors.New("table: unknown field")
	ErrConfigFrozen  = errors.New("table: config is frozen")
)

// Lookup errors, one per entity kind.
var (
	ErrColumnNotFound      = errors.New("table: column not found")
	ErrColumnGroupNotFound = errors.New("table: column group not found")
	ErrBulkActionNotFound  = errors.New("table: bulk action not found")
)

// ErrExtensionRequired is returned by contract operations that need a
// collection adapter (or a registered handler) and none was provided.
var ErrExtensionRequired = errors.New("table: extension required")

// Extendable type errors.
var (
	ErrExtendableNotFound = errors.New("table: extendable class not found")
	ErrIncompatibleValue  = errors.New("table: incompatible value")
)

// Export errors.
var (
	ErrExportDisabled    = errors.New("table: export disabled")
	ErrUnsupportedFormat = errors.New("table: unsupported export format")
)

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrUnknownField) ||
		errors.Is(err, ErrConfigFrozen)
}

// IsNotFound reports whether err is a column, column group or bulk action lookup error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrColumnNotFound) ||
		errors.Is(err, ErrColumnGroupNotFound) ||
		errors.Is(err, ErrBulkActionNotFound)
}

// IsExtensionRequired reports whether err signals a missing adapter implementation.
func IsExtensionRequired(err error) bool {
	return errors.Is(err, ErrExtensionRequired)
}
