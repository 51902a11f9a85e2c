package schema

import "strings"

// NormalizeStatus maps free text onto the status enumeration. It never
// fails: blank or unrecognized input becomes StatusInvited, so an unknown
// status cannot be told apart from a missing one.
func NormalizeStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CHECKED_IN", "CHECKED IN":
		return StatusCheckedIn
	case "CANCELLED", "CANCELED":
		return StatusCancelled
	default:
		return StatusInvited
	}
}
