// Package core provides the business logic for guest-list imports and exports.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Typed errors are matched first (errors.Is / errors.As), then the message
// text is matched against known patterns.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - No rows: The file contains no guest rows
//	         Action: Add a header with a "name" column, or put names in the first column
//	         Matches: ErrNoRows
//
//	IMP002 - Busy: Another guest list operation is in progress
//	         Action: Wait for it to finish and try again
//	         Matches: ErrEventBusy, "event busy"
//
//	IMP003 - Row rejected: The registry rejected one row of the import
//	         Message: "Failed to import row N (Name): <registry message>"
//	         Action: Rows before it were imported; remove them from the file before retrying
//	         Matches: *ImportError
//
// # Guest Errors (GST001-GST099)
//
//	GST001 - Invalid guest: Guest name is required
//	         Matches: ErrInvalidGuest
//
//	GST002 - Not found: The guest no longer exists
//	         Matches: ErrGuestNotFound
//
// # Registry Errors (REG001-REG099)
//
//	REG001 - Rejected: the registry's own response text is shown verbatim
//	         Matches: *registry.RemoteError
//
//	REG002 - Unreachable: Unable to reach the guest registry
//	         Patterns: "connection refused", "no such host", "connection reset"
//
//	REG003 - Timeout: The guest registry did not respond in time
//	         Patterns: "deadline exceeded", "timeout"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum upload size
//	          Matches: csv.ErrFileTooLarge
//
//	FILE004 - No file: No file was selected
//	          Patterns: "no file provided"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL004 - Request cancelled: Request was cancelled
//	         Patterns: "context canceled"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check application logs
// for the original technical error when users report ERR000.
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/guestlist/internal/csv"
	"github.com/JonMunkholm/guestlist/internal/registry"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// sentinelMessages maps sentinel errors to user messages. Checked with
// errors.Is before any pattern.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrNoRows, UserMessage{
		Message: "No rows found",
		Action:  `Add a header with a "name" column, or put guest names in the first column`,
		Code:    "IMP001",
	}},
	{ErrEventBusy, UserMessage{
		Message: "Another guest list operation is in progress",
		Action:  "Wait for it to finish and try again",
		Code:    "IMP002",
	}},
	{ErrInvalidGuest, UserMessage{
		Message: "Guest name is required",
		Action:  "Enter a name and save again",
		Code:    "GST001",
	}},
	{ErrGuestNotFound, UserMessage{
		Message: "The guest no longer exists",
		Action:  "Refresh the guest list",
		Code:    "GST002",
	}},
	{csv.ErrFileTooLarge, UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}},
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Patterns are matched using strings.Contains, so partial matches work.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Registry Transport Errors (REG002-REG003)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the guest registry",
			Action:  "Please try again in a few moments",
			Code:    "REG002",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "Unable to reach the guest registry",
			Action:  "Please try again in a few moments",
			Code:    "REG002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Unable to reach the guest registry",
			Action:  "Please try again",
			Code:    "REG002",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "The guest registry did not respond in time",
			Action:  "Please try again later",
			Code:    "REG003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The guest registry did not respond in time",
			Action:  "Please try again later",
			Code:    "REG003",
		},
	},

	// =========================================================================
	// Request Errors
	// =========================================================================
	{
		pattern: "event busy",
		msg: UserMessage{
			Message: "Another guest list operation is in progress",
			Action:  "Wait for it to finish and try again",
			Code:    "IMP002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// CodeUnknown is the code of the message returned when nothing matches.
const CodeUnknown = "ERR000"

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    CodeUnknown,
}

// MapError converts a technical error to a user-friendly message.
//
// A rejected import row reports the row and the registry's own text:
//
//	err := &ImportError{Index: 2, Name: "Bob", Err: remoteErr}
//	msg := MapError(err)
//	// msg.Code == "IMP003"
//	// msg.Message == "Failed to import row 2 (Bob): guest already exists"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ie *ImportError
	if errors.As(err, &ie) {
		return UserMessage{
			Message: fmt.Sprintf("Failed to import row %d (%s): %s", ie.Index, ie.Name, remoteText(ie.Err)),
			Action:  "Rows before it were imported. Remove them from the file before retrying",
			Code:    "IMP003",
		}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	if re, ok := registry.AsRemote(err); ok {
		return UserMessage{
			Message: re.Error(),
			Action:  "Check the guest details and try again",
			Code:    "REG001",
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

// remoteText returns the registry's message when err carries one, and the
// mapped message otherwise.
func remoteText(err error) string {
	if re, ok := registry.AsRemote(err); ok {
		return re.Error()
	}
	return MapError(err).Message
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a
// user-friendly message. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
