// Package schema defines the guest-list record shape and maps tokenized
// file rows onto it.
package schema

import (
	"slices"
	"strings"
	"time"
)

// Status is the attendance state of a guest. Only the three constants below
// are valid; NormalizeStatus coerces anything else to StatusInvited.
type Status string

const (
	StatusInvited   Status = "INVITED"
	StatusCheckedIn Status = "CHECKED_IN"
	StatusCancelled Status = "CANCELLED"
)

// Statuses lists the valid statuses in display order.
var Statuses = []Status{StatusInvited, StatusCheckedIn, StatusCancelled}

// Valid reports whether s is one of Statuses.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// GuestRecord is one guest as stored by the remote registry.
// Empty optional fields mean "not provided".
type GuestRecord struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Status    Status     `json:"status"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Input returns the editable fields of the record.
func (r GuestRecord) Input() GuestInput {
	return GuestInput{
		Name:   r.Name,
		Email:  r.Email,
		Phone:  r.Phone,
		Notes:  r.Notes,
		Status: r.Status,
	}
}

// GuestInput is the body of a create or update call. Optional fields are
// omitted from the wire when empty.
type GuestInput struct {
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Notes  string `json:"notes,omitempty"`
	Status Status `json:"status"`
}

// Normalize trims every field and coerces the status into the enumeration.
func (in GuestInput) Normalize() GuestInput {
	return GuestInput{
		Name:   strings.TrimSpace(in.Name),
		Email:  strings.TrimSpace(in.Email),
		Phone:  strings.TrimSpace(in.Phone),
		Notes:  strings.TrimSpace(in.Notes),
		Status: NormalizeStatus(string(in.Status)),
	}
}

// HasName reports whether the input carries a non-blank name.
func (in GuestInput) HasName() bool {
	return strings.TrimSpace(in.Name) != ""
}
