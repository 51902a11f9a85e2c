package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/guestlist/internal/core"
	"github.com/JonMunkholm/guestlist/internal/logging"
	"github.com/JonMunkholm/guestlist/internal/schema"
	"github.com/JonMunkholm/guestlist/internal/web/templates"
)

// maxGuestBody bounds the JSON body of a manual create or edit.
const maxGuestBody = 64 << 10

// ImportFailure is the body of a failed import. Result describes the rows
// that were committed before the failing row.
type ImportFailure struct {
	ErrorResponse
	Result *core.ImportResult `json:"result,omitempty"`
}

// GuestResponse is the body of a manual create or edit.
type GuestResponse struct {
	Guest    schema.GuestRecord `json:"guest"`
	Snapshot core.Snapshot      `json:"snapshot"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"active_imports": s.service.ActiveImports(),
	})
}

// handleListGuests returns the cached snapshot, fetching it on first use.
func (s *Server) handleListGuests(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondSnapshot(w, r, http.StatusOK, snap)
}

func (s *Server) handleRefreshGuests(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Refresh(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondSnapshot(w, r, http.StatusOK, snap)
}

func (s *Server) handleCreateGuest(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeGuestInput(w, r)
	if !ok {
		return
	}

	guest, snap, err := s.service.Create(r.Context(), chi.URLParam(r, "eventID"), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if isHTMX(r) {
		s.render(w, r, http.StatusCreated, templates.GuestTable(snap))
		return
	}
	writeJSON(w, http.StatusCreated, GuestResponse{Guest: guest, Snapshot: snap})
}

// handleUpdateGuest replaces every field of an existing guest.
func (s *Server) handleUpdateGuest(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeGuestInput(w, r)
	if !ok {
		return
	}

	eventID := chi.URLParam(r, "eventID")
	guestID := chi.URLParam(r, "guestID")
	guest, snap, err := s.service.Update(r.Context(), eventID, guestID, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if isHTMX(r) {
		s.render(w, r, http.StatusOK, templates.GuestTable(snap))
		return
	}
	writeJSON(w, http.StatusOK, GuestResponse{Guest: guest, Snapshot: snap})
}

func (s *Server) handleDeleteGuest(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	guestID := chi.URLParam(r, "guestID")

	snap, err := s.service.Delete(r.Context(), eventID, guestID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondSnapshot(w, r, http.StatusOK, snap)
}

// handleImport runs a batch import of the uploaded "file" part and answers
// once the batch and the trailing refresh are done.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	maxSize := s.service.MaxFileSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.respondError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Import(ctx, eventID, header.Filename, file)
	if err != nil {
		s.respondImportError(w, r, res, err)
		return
	}

	if isHTMX(r) {
		s.render(w, r, http.StatusOK, templates.ImportSummary(res))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// respondImportError reports a failed import. A batch stopped by a rejected
// row also carries what was committed before it.
func (s *Server) respondImportError(w http.ResponseWriter, r *http.Request, res core.ImportResult, err error) {
	var importErr *core.ImportError
	if !errors.As(err, &importErr) || isHTMX(r) {
		s.respondError(w, r, err)
		return
	}

	status := statusFor(err)
	msg := core.MapError(err)
	logging.FromContext(r.Context()).Warn("import stopped",
		"event_id", res.EventID,
		"import_id", res.ImportID,
		"row", importErr.Index,
		"error", err,
	)
	writeJSON(w, status, ImportFailure{
		ErrorResponse: ErrorResponse{
			Error:   msg.Message,
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		},
		Result: &res,
	})
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ImportStatus(chi.URLParam(r, "eventID")))
}

// handleExport downloads the current guest list as guest-list-{eventID}.csv.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	file, err := s.service.Export(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	if _, err := w.Write(file.Data); err != nil {
		logging.FromContext(r.Context()).Error("write export", "error", err)
	}
}

// handleHistory lists past imports of the event, newest first.
// Accepts an optional ?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := core.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := s.service.History(r.Context(), chi.URLParam(r, "eventID"), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) respondSnapshot(w http.ResponseWriter, r *http.Request, status int, snap core.Snapshot) {
	if isHTMX(r) {
		s.render(w, r, status, templates.GuestTable(snap))
		return
	}
	writeJSON(w, status, snap)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render fragment", "error", err)
	}
}

// decodeGuestInput reads a GuestInput body. It writes the error response
// itself and reports false when the body is unusable.
func decodeGuestInput(w http.ResponseWriter, r *http.Request) (schema.GuestInput, bool) {
	var in schema.GuestInput

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGuestBody))
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid guest body")
		return in, false
	}
	return in, true
}
