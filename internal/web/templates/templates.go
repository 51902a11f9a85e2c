// Package templates renders the HTML fragments returned to HTMX requests.
package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/guestlist/internal/core"
)

// ErrorAlert renders an error banner with an optional suggested action.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<div class="alert alert-error" role="alert" data-code="%s"><p class="alert-message">%s</p>`,
			templ.EscapeString(code), templ.EscapeString(message)); err != nil {
			return err
		}
		if action != "" {
			if _, err := fmt.Fprintf(w, `<p class="alert-action">%s</p>`, templ.EscapeString(action)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

// ImportSummary renders the outcome of a finished import followed by the
// refreshed guest table.
func ImportSummary(res core.ImportResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="alert alert-success" role="status"><p>Imported %d of %d rows`,
			res.Submitted, res.TotalRows)
		if err != nil {
			return err
		}
		if res.Dropped > 0 {
			if _, err := fmt.Fprintf(w, ` (%d without a name skipped)`, res.Dropped); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</p></div>`); err != nil {
			return err
		}
		return GuestTable(res.Snapshot).Render(ctx, w)
	})
}

// GuestTable renders an event's guest list snapshot.
func GuestTable(snap core.Snapshot) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<table class="guest-table" data-event="%s" data-version="%d"><thead><tr><th>Name</th><th>Email</th><th>Phone</th><th>Notes</th><th>Status</th></tr></thead><tbody>`,
			templ.EscapeString(snap.EventID), snap.Version); err != nil {
			return err
		}
		for _, g := range snap.Guests {
			if _, err := fmt.Fprintf(w, `<tr id="guest-%s"><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
				templ.EscapeString(g.ID),
				templ.EscapeString(g.Name),
				templ.EscapeString(g.Email),
				templ.EscapeString(g.Phone),
				templ.EscapeString(g.Notes),
				templ.EscapeString(string(g.Status)),
			); err != nil {
				return err
			}
		}
		if len(snap.Guests) == 0 {
			if _, err := io.WriteString(w, `<tr><td colspan="5">No guests yet</td></tr>`); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	})
}
