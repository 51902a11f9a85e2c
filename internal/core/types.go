// Package core provides the business logic for guest-list imports and exports.
// This package has no UI dependencies and can be used by any frontend.
package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/guestlist/internal/schema"
)

var (
	// ErrNoRows is returned when an uploaded file yields no importable rows.
	// No registry call is made in that case.
	ErrNoRows = errors.New("no rows found")

	// ErrEventBusy is returned when another operation holds the event's lock.
	ErrEventBusy = errors.New("event busy: another guest list operation is in progress")

	// ErrInvalidGuest is returned for a manual create or edit without a name.
	ErrInvalidGuest = errors.New("invalid guest: name is required")

	// ErrGuestNotFound is returned when the registry has no such guest.
	ErrGuestNotFound = errors.New("guest not found")
)

// ImportState is the lifecycle state of the latest import for an event.
type ImportState string

const (
	ImportIdle      ImportState = "idle"
	ImportImporting ImportState = "importing"
	ImportCompleted ImportState = "completed"
	ImportFailed    ImportState = "failed"
)

// Snapshot is an immutable copy of an event's guest list as last read from
// the registry. A newer snapshot replaces an older one whole; Guests is never
// modified after construction.
type Snapshot struct {
	EventID   string               `json:"eventId"`
	Version   uint64               `json:"version"`
	Guests    []schema.GuestRecord `json:"guests"`
	FetchedAt time.Time            `json:"fetchedAt"`
}

// Len returns the number of guests.
func (s Snapshot) Len() int { return len(s.Guests) }

// Find returns the guest with the given id.
func (s Snapshot) Find(id string) (schema.GuestRecord, bool) {
	for _, g := range s.Guests {
		if g.ID == id {
			return g, true
		}
	}
	return schema.GuestRecord{}, false
}

// ImportError reports the first row the registry rejected. Rows before it
// were created and stay created.
type ImportError struct {
	Index int    // 1-based position in the batch
	Row   int    // 1-based position among the file's non-blank lines
	Name  string // guest name of the failed row
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("failed to import row %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// ImportStatus describes the current or last import for an event.
// It doubles as the import history entry.
type ImportStatus struct {
	ImportID   string      `json:"importId,omitempty"`
	EventID    string      `json:"eventId"`
	FileName   string      `json:"fileName,omitempty"`
	State      ImportState `json:"state"`
	TotalRows  int         `json:"totalRows"`
	Submitted  int         `json:"submitted"`
	Dropped    int         `json:"dropped"`
	FailedRow  int         `json:"failedRow,omitempty"`
	FailedName string      `json:"failedName,omitempty"`
	Error      string      `json:"error,omitempty"`
	IPAddress  string      `json:"ipAddress,omitempty"`
	UserAgent  string      `json:"userAgent,omitempty"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
}

// Running reports whether the import has not finished yet.
func (s ImportStatus) Running() bool {
	return s.State == ImportImporting
}

// ImportResult is returned by a finished import.
type ImportResult struct {
	ImportID  string   `json:"importId"`
	EventID   string   `json:"eventId"`
	TotalRows int      `json:"totalRows"`
	Submitted int      `json:"submitted"`
	Dropped   int      `json:"dropped"`
	Snapshot  Snapshot `json:"snapshot"`
}

// ExportFile is a rendered guest-list download.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}
