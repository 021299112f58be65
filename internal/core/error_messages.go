package core

// error_messages.go maps technical errors to user messages with codes for
// support reference.
//
// # Table errors
//
//	CFG001 - Table is misconfigured (table.ErrConfiguration, ErrUnknownField, ErrConfigFrozen)
//	LKP001 - Table not found (ErrTableNotFound)
//	LKP002 - Column not found (table.ErrColumnNotFound)
//	LKP003 - Column group not found (table.ErrColumnGroupNotFound)
//	LKP004 - Bulk action not found (table.ErrBulkActionNotFound)
//	EXT001 - Feature not supported by the table's data source (table.ErrExtensionRequired)
//	EXT002 - Data source is not usable by the table (table.ErrIncompatibleValue, ErrExtendableNotFound)
//	EXP001 - Export disabled (table.ErrExportDisabled)
//	EXP002 - Unsupported export format (table.ErrUnsupportedFormat)
//	EXP003 - Too many exports running (ErrTooManyExports)
//
// # Request errors
//
//	REQ001 - Request cancelled (context.Canceled)
//	REQ002 - Request timed out (context.DeadlineExceeded)
//
// # Database errors
//
// Matched case-insensitively on the error text, first match wins:
//
//	DB004 - "connection refused"
//	DB005 - "connection reset"
//	DB006 - "timeout"
//	DB007 - "deadlock"
//	DB008 - "does not exist" (missing relation or column)
//
// Anything else is ERR000; check the logs for the technical error.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/rapidtable/internal/table"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorKind struct {
	targets []error
	msg     UserMessage
}

// errorKinds is checked with errors.Is, in order.
var errorKinds = []errorKind{
	{
		targets: []error{ErrTableNotFound},
		msg:     UserMessage{"Table not found", "Verify the table name is correct", "LKP001"},
	},
	{
		targets: []error{table.ErrColumnNotFound},
		msg:     UserMessage{"Column not found", "Check the requested columns", "LKP002"},
	},
	{
		targets: []error{table.ErrColumnGroupNotFound},
		msg:     UserMessage{"Column group not found", "Check the requested column group", "LKP003"},
	},
	{
		targets: []error{table.ErrBulkActionNotFound},
		msg:     UserMessage{"Bulk action not found", "Choose one of the listed actions", "LKP004"},
	},
	{
		targets: []error{table.ErrExportDisabled},
		msg:     UserMessage{"Export is disabled for this table", "Contact an administrator to enable it", "EXP001"},
	},
	{
		targets: []error{table.ErrUnsupportedFormat},
		msg:     UserMessage{"Export format is not supported", "Choose one of the offered formats", "EXP002"},
	},
	{
		targets: []error{ErrTooManyExports},
		msg:     UserMessage{"Too many exports are running", "Please wait a moment and try again", "EXP003"},
	},
	{
		targets: []error{table.ErrExtensionRequired},
		msg:     UserMessage{"This table cannot do that with its data source", "Contact an administrator", "EXT001"},
	},
	{
		targets: []error{table.ErrIncompatibleValue, table.ErrExtendableNotFound},
		msg:     UserMessage{"The table's data source is not usable", "Contact an administrator", "EXT002"},
	},
	{
		targets: []error{table.ErrConfiguration, table.ErrUnknownField, table.ErrConfigFrozen},
		msg:     UserMessage{"The table is misconfigured", "Check the request parameters or contact an administrator", "CFG001"},
	},
	{
		targets: []error{context.Canceled},
		msg:     UserMessage{"Request was cancelled", "Please try again", "REQ001"},
	},
	{
		targets: []error{context.DeadlineExceeded},
		msg:     UserMessage{"Request timed out", "Narrow the search or try again later", "REQ002"},
	},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps database error text (lowercase) to user messages.
var errorPatterns = []errorPattern{
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Narrow the search or try again later", "DB006"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},
	{"does not exist", UserMessage{"The table's database relation is missing", "Contact an administrator", "DB008"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message: sentinel
// errors first, then database error text, then ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	for _, k := range errorKinds {
		for _, target := range k.targets {
			if errors.Is(err, target) {
				return k.msg
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string { return e.User.Message }

func (e *UserError) Unwrap() error { return e.Technical }

// NewUserError maps err. It returns nil for a nil err.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
