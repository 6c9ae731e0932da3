// Package api serves the read side of the transcript log: meeting listings,
// single meetings, and their final transcripts.
//
// Every route expects [auth.Claims] in the request context. Callers see only
// their own meetings; a meeting owned by someone else is reported as missing.
// Service-role tokens may read everything.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrWong99/meetscribe/internal/auth"
	"github.com/MrWong99/meetscribe/internal/observe"
	"github.com/MrWong99/meetscribe/pkg/memory"
)

// Server handles the meetings routes.
type Server struct {
	store memory.Store
}

// NewServer returns a Server reading from store.
func NewServer(store memory.Store) *Server {
	return &Server{store: store}
}

// Register adds the routes to mux, each wrapped by mw (typically the auth
// middleware). A nil mw registers the bare handlers.
func (s *Server) Register(mux *http.ServeMux, mw func(http.Handler) http.Handler) {
	if mw == nil {
		mw = func(h http.Handler) http.Handler { return h }
	}
	mux.Handle("GET /v1/meetings", mw(http.HandlerFunc(s.handleList)))
	mux.Handle("GET /v1/meetings/{id}", mw(http.HandlerFunc(s.handleGet)))
	mux.Handle("GET /v1/meetings/{id}/transcript", mw(http.HandlerFunc(s.handleTranscript)))
}

type meetingView struct {
	memory.Meeting
	Active bool `json:"active"`
}

func viewOf(m memory.Meeting) meetingView {
	return meetingView{Meeting: m, Active: m.Active()}
}

type listResponse struct {
	Meetings []meetingView `json:"meetings"`
}

type transcriptResponse struct {
	MeetingID string                   `json:"meeting_id"`
	Entries   []memory.TranscriptEntry `json:"entries"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}

	opts := memory.ListOpts{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = n
	}
	if !claims.IsService() {
		opts.OwnerID = claims.OwnerID()
	}

	meetings, err := s.store.ListMeetings(r.Context(), opts)
	if err != nil {
		s.internalError(w, r, "list meetings", err)
		return
	}
	resp := listResponse{Meetings: make([]meetingView, 0, len(meetings))}
	for _, m := range meetings {
		resp.Meetings = append(resp.Meetings, viewOf(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}
	m, ok := s.visibleMeeting(w, r, claims)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(m))
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}
	m, ok := s.visibleMeeting(w, r, claims)
	if !ok {
		return
	}

	entries, err := s.store.Transcript(r.Context(), m.ID)
	if errors.Is(err, memory.ErrNotFound) {
		writeError(w, http.StatusNotFound, "meeting not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "read transcript", err)
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse{MeetingID: m.ID, Entries: entries})
}

// visibleMeeting loads the {id} meeting and writes 404 unless claims may see it.
func (s *Server) visibleMeeting(w http.ResponseWriter, r *http.Request, claims *auth.Claims) (memory.Meeting, bool) {
	m, err := s.store.GetMeeting(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, "meeting not found")
		return memory.Meeting{}, false
	case err != nil:
		s.internalError(w, r, "get meeting", err)
		return memory.Meeting{}, false
	}
	if m.OwnerID != claims.OwnerID() && !claims.IsService() {
		writeError(w, http.StatusNotFound, "meeting not found")
		return memory.Meeting{}, false
	}
	return m, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	observe.Logger(r.Context()).Error("api: "+op, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func claimsOrUnauthorized(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing access token")
	}
	return claims, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
