package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lautenbacher.net/sagealarm/alarm"
	"lautenbacher.net/sagealarm/puzzle"
)

func (s *server) getSession(w http.ResponseWriter, r *http.Request) {
	session := s.engine.Active()
	if session == nil {
		writeError(w, http.StatusNotFound, "no_session", "no alarm is ringing")
		return
	}
	writeJSON(w, http.StatusOK, session.Status())
}

func (s *server) dismiss(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Dismiss(); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tapRequest struct {
	Value *int `json:"value"`
}

type tapResponse struct {
	Solved bool             `json:"solved"`
	Puzzle *puzzle.Instance `json:"puzzle,omitempty"`
}

func (s *server) tap(w http.ResponseWriter, r *http.Request) {
	var req tapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeError(w, http.StatusBadRequest, "bad_request", `expected {"value": <number>}`)
		return
	}
	session := s.engine.Active()
	solved, err := s.engine.Tap(*req.Value)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	resp := tapResponse{Solved: solved}
	if session != nil {
		resp.Puzzle = session.Status().Puzzle
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) listAlarms(w http.ResponseWriter, r *http.Request) {
	defs, err := s.engine.Alarms(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if defs == nil {
		defs = []alarm.Definition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *server) saveAlarm(w http.ResponseWriter, r *http.Request) {
	d := alarm.New(0, 0)
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	created := d.ID == 0
	saved, err := s.engine.Save(r.Context(), d)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, saved)
}

func alarmID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid alarm id")
		return 0, false
	}
	return id, true
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *server) setEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := alarmID(w, r)
	if !ok {
		return
	}
	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "bad_request", `expected {"enabled": <bool>}`)
		return
	}
	d, err := s.engine.SetEnabled(r.Context(), id, *req.Enabled)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *server) deleteAlarm(w http.ResponseWriter, r *http.Request) {
	id, ok := alarmID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Delete(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) nextTrigger(w http.ResponseWriter, r *http.Request) {
	id, ok := alarmID(w, r)
	if !ok {
		return
	}
	at, err := s.engine.NextTrigger(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alarmId": id, "at": at})
}

func (s *server) upcoming(w http.ResponseWriter, r *http.Request) {
	up, err := s.engine.Upcoming(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (s *server) tones(w http.ResponseWriter, r *http.Request) {
	tones := s.opts.Tones
	if tones == nil {
		tones = []string{}
	}
	writeJSON(w, http.StatusOK, tones)
}
