// Package registrytest provides an in-memory guest registry served over
// httptest for use in tests.
package registrytest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/guestlist/internal/schema"
)

// Call is one request received by the Server.
type Call struct {
	Method  string
	Path    string
	EventID string
	GuestID string
	Input   schema.GuestInput
}

type rejection struct {
	status int
	body   string
}

// Server is a fake registry. Without a token every request is accepted.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	token    string
	onCreate func(eventID string, in schema.GuestInput)
	onList   func(eventID string)
	guests   map[string][]schema.GuestRecord
	nextID   int
	calls    []Call
	rejectBy map[string]rejection // by guest name, for creates
	rejectOp map[string]rejection // by operation, for everything
}

// NewServer starts a Server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		guests:   make(map[string][]schema.GuestRecord),
		rejectBy: make(map[string]rejection),
		rejectOp: make(map[string]rejection),
	}

	r := chi.NewRouter()
	r.Use(s.auth)
	r.Get("/events/{eventID}/guest-list", s.handleList)
	r.Post("/events/{eventID}/guest-list", s.handleCreate)
	r.Patch("/events/{eventID}/guest-list/{guestID}", s.handleUpdate)
	r.Delete("/events/{eventID}/guest-list/{guestID}", s.handleDelete)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// SetToken makes the server require "Authorization: Bearer <token>".
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// OnCreate installs fn to run before each create is applied.
func (s *Server) OnCreate(fn func(eventID string, in schema.GuestInput)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCreate = fn
}

// OnList installs fn to run before each list is answered.
func (s *Server) OnList(fn func(eventID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onList = fn
}

// RejectCreate makes every create for a guest called name fail with status
// and body.
func (s *Server) RejectCreate(name string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectBy[name] = rejection{status: status, body: body}
}

// RejectOp makes every request for op ("list", "create", "update",
// "delete") fail with status and body.
func (s *Server) RejectOp(op string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectOp[op] = rejection{status: status, body: body}
}

// AllowOp clears a rejection set by RejectOp.
func (s *Server) AllowOp(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rejectOp, op)
}

// Seed appends records to an event, assigning ids to records without one.
func (s *Server) Seed(eventID string, recs ...schema.GuestRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = s.newID()
		}
		s.guests[eventID] = append(s.guests[eventID], rec)
	}
}

// Guests returns a copy of the stored records for an event.
func (s *Server) Guests(eventID string) []schema.GuestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.GuestRecord, len(s.guests[eventID]))
	copy(out, s.guests[eventID])
	return out
}

// Calls returns every request received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of requests with the given method.
func (s *Server) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (s *Server) newID() string {
	s.nextID++
	return "g" + strconv.Itoa(s.nextID)
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) record(r *http.Request, in schema.GuestInput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{
		Method:  r.Method,
		Path:    r.URL.Path,
		EventID: chi.URLParam(r, "eventID"),
		GuestID: chi.URLParam(r, "guestID"),
		Input:   in,
	})
}

func (s *Server) rejected(w http.ResponseWriter, op, name string) bool {
	s.mu.Lock()
	rej, ok := s.rejectOp[op]
	if !ok && op == "create" {
		rej, ok = s.rejectBy[name]
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	w.WriteHeader(rej.status)
	_, _ = io.WriteString(w, rej.body)
	return true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.record(r, schema.GuestInput{})
	s.mu.Lock()
	hook := s.onList
	s.mu.Unlock()
	if hook != nil {
		hook(chi.URLParam(r, "eventID"))
	}
	if s.rejected(w, "list", "") {
		return
	}
	writeJSON(w, http.StatusOK, s.Guests(chi.URLParam(r, "eventID")))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	s.record(r, in)

	eventID := chi.URLParam(r, "eventID")
	s.mu.Lock()
	hook := s.onCreate
	s.mu.Unlock()
	if hook != nil {
		hook(eventID, in)
	}
	if s.rejected(w, "create", in.Name) {
		return
	}

	now := time.Now().UTC()
	s.mu.Lock()
	rec := schema.GuestRecord{
		ID:        s.newID(),
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		Notes:     in.Notes,
		Status:    in.Status,
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	s.guests[eventID] = append(s.guests[eventID], rec)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	s.record(r, in)
	if s.rejected(w, "update", in.Name) {
		return
	}

	eventID, guestID := chi.URLParam(r, "eventID"), chi.URLParam(r, "guestID")
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.guests[eventID] {
		if rec.ID != guestID {
			continue
		}
		rec.Name, rec.Email, rec.Phone, rec.Notes, rec.Status = in.Name, in.Email, in.Phone, in.Notes, in.Status
		rec.UpdatedAt = &now
		s.guests[eventID][i] = rec
		writeJSON(w, http.StatusOK, rec)
		return
	}
	http.Error(w, "guest not found", http.StatusNotFound)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.record(r, schema.GuestInput{})
	if s.rejected(w, "delete", "") {
		return
	}

	eventID, guestID := chi.URLParam(r, "eventID"), chi.URLParam(r, "guestID")

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.guests[eventID]
	for i, rec := range list {
		if rec.ID == guestID {
			s.guests[eventID] = append(list[:i:i], list[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	http.Error(w, "guest not found", http.StatusNotFound)
}

func decodeInput(w http.ResponseWriter, r *http.Request) (schema.GuestInput, bool) {
	var in schema.GuestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return in, false
	}
	return in, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
