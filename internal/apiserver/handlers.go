package apiserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pharmesol/pharmabot/internal/agent"
	"github.com/pharmesol/pharmabot/internal/store"
	"github.com/pharmesol/pharmabot/pkg/api"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writeJSON serialises data as JSON and writes it to the response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// writeError writes a JSON error envelope to the response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// syncRecord refreshes a session record from the engine's state. Caller holds
// the liveSession mutex.
func syncRecord(ls *liveSession) {
	st := ls.agent.State()

	turns := make([]api.Turn, 0, len(st.History))
	for _, t := range st.History {
		turns = append(turns, api.Turn{Role: t.Role, Content: t.Content})
	}
	ls.rec.Turns = turns
	ls.rec.Collected = st.Collected
	ls.rec.Topics = st.Topics
	ls.rec.EmailSent = st.EmailSent
	if st.Pharmacy != nil {
		ls.rec.PharmacyName = st.Pharmacy.Name
	}
	ls.rec.UpdatedAt = time.Now()
}

// getLive resolves a session by ID, restoring it from the store after a
// restart if necessary. Restored sessions keep their transcript and collected
// info; the directory record is re-resolved lazily by the engine's tools.
func (s *Server) getLive(id string) (*liveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ls, ok := s.sessions[id]; ok {
		return ls, nil
	}

	var rec api.Session
	if err := s.store.Get(store.SessionKey(id), &rec); err != nil {
		return nil, err
	}

	eng := s.newAgent()
	st := agent.NewState()
	for _, t := range rec.Turns {
		st.History = append(st.History, agent.Turn{Role: t.Role, Content: t.Content})
	}
	if rec.Collected != nil {
		st.Collected = rec.Collected
	}
	st.Topics = rec.Topics
	st.EmailSent = rec.EmailSent
	eng.Restore(st)

	ls := &liveSession{agent: eng, rec: rec}
	s.sessions[id] = ls
	return ls, nil
}

// dropLive removes a session from the live map.
func (s *Server) dropLive(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req api.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		s.writeError(w, http.StatusBadRequest, "phone is required")
		return
	}

	eng := s.newAgent()
	// The greeting lands on the transcript; clients read it from the record.
	eng.HandleIncomingCall(r.Context(), req.Phone)

	now := time.Now()
	ls := &liveSession{
		agent: eng,
		rec: api.Session{
			ID:        uuid.New().String(),
			Phone:     req.Phone,
			Mode:      s.mode,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	syncRecord(ls)

	if err := s.store.Create(store.SessionKey(ls.rec.ID), &ls.rec); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	s.sessions[ls.rec.ID] = ls
	s.mu.Unlock()

	s.logger.Info("session started",
		zap.String("session", ls.rec.ID),
		zap.String("phone", req.Phone),
		zap.String("pharmacy", ls.rec.PharmacyName),
	)

	s.writeJSON(w, http.StatusCreated, &ls.rec)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var rec api.Session
	if err := s.store.Get(store.SessionKey(id), &rec); err != nil {
		if err == store.ErrNotFound {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, &rec)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.List(store.SessionKeyPrefix, func() interface{} { return &api.Session{} })
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sessions := make([]*api.Session, 0, len(items))
	for _, item := range items {
		sessions = append(sessions, item.(*api.Session))
	}

	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.store.Delete(store.SessionKey(id)); err != nil {
		if err == store.ErrNotFound {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.dropLive(id)

	s.logger.Info("session ended", zap.String("session", id))
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req api.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	ls, err := s.getLive(id)
	if err != nil {
		if err == store.ErrNotFound {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Persisting inside the critical section keeps the store in transcript
	// order when messages race on one session.
	ls.mu.Lock()
	reply := ls.agent.ProcessMessage(r.Context(), req.Text)
	syncRecord(ls)
	if err := s.store.Update(store.SessionKey(id), &ls.rec); err != nil {
		// The reply already happened; losing the snapshot is log-worthy only.
		s.logger.Warn("failed to persist session", zap.String("session", id), zap.Error(err))
	}
	ls.mu.Unlock()

	s.writeJSON(w, http.StatusOK, api.MessageReply{Reply: reply})
}
