package core

import (
	"context"

	"github.com/JonMunkholm/guestlist/internal/csv"
	"github.com/JonMunkholm/guestlist/internal/schema"
)

// ExportContentType is the media type of exported files.
const ExportContentType = "text/csv"

// ExportFileName returns the download name for an event's guest list.
func ExportFileName(eventID string) string {
	return "guest-list-" + eventID + ".csv"
}

// EncodeGuests renders guests as CSV text: a header row, then one row per
// guest in the given order.
func EncodeGuests(guests []schema.GuestRecord) string {
	rows := make([][]string, 0, len(guests)+1)
	rows = append(rows, schema.Columns())
	for _, g := range guests {
		rows = append(rows, schema.Row(g))
	}
	return csv.Encode(rows)
}

// ExportSnapshot renders a snapshot as a downloadable file.
func ExportSnapshot(snap Snapshot) ExportFile {
	return ExportFile{
		Name:        ExportFileName(snap.EventID),
		ContentType: ExportContentType,
		Data:        []byte(EncodeGuests(snap.Guests)),
	}
}

// Export renders the event's current guest list.
func (s *Service) Export(ctx context.Context, eventID string) (ExportFile, error) {
	snap, err := s.Snapshot(ctx, eventID)
	if err != nil {
		return ExportFile{}, err
	}
	return ExportSnapshot(snap), nil
}
