package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wilcooo/fx-cast/internal/models"
	"github.com/wilcooo/fx-cast/internal/session"
	"github.com/wilcooo/fx-cast/internal/status"
)

type sessionView struct {
	SessionID   string               `json:"sessionId"`
	AppID       string               `json:"appId"`
	TransportID string               `json:"transportId"`
	DisplayName string               `json:"displayName,omitempty"`
	Status      models.SessionStatus `json:"status"`
	StatusText  string               `json:"statusText,omitempty"`
	Namespaces  []string             `json:"namespaces,omitempty"`
}

type mediaView struct {
	SessionID     string            `json:"sessionId"`
	EstimatedTime float64           `json:"estimatedTime"`
	State         status.MediaState `json:"state"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.session
	writeJSON(w, http.StatusOK, sessionView{
		SessionID:   sess.SessionID,
		AppID:       sess.AppID,
		TransportID: sess.TransportID,
		DisplayName: sess.DisplayName,
		Status:      sess.Status(),
		StatusText:  sess.StatusText(),
		Namespaces:  sess.Namespaces(),
	})
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mediaViews())
}

func (s *Server) mediaViews() []mediaView {
	entities := s.session.MediaEntities()
	views := make([]mediaView, 0, len(entities))
	for _, m := range entities {
		views = append(views, mediaView{
			SessionID:     m.SessionID,
			EstimatedTime: m.GetEstimatedTime(),
			State:         m.State(),
		})
	}
	return views
}

func (s *Server) lookupMedia(w http.ResponseWriter, r *http.Request) (*session.Media, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid media session id")
		return nil, false
	}
	m, ok := s.session.Media(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown media session")
		return nil, false
	}
	return m, true
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookupMedia(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, mediaView{
		SessionID:     m.SessionID,
		EstimatedTime: m.GetEstimatedTime(),
		State:         m.State(),
	})
}

type commandRequest struct {
	Command      string   `json:"command"`
	CurrentTime  *float64 `json:"currentTime,omitempty"`
	Level        *float64 `json:"level,omitempty"`
	Muted        *bool    `json:"muted,omitempty"`
	PlaybackRate *float64 `json:"playbackRate,omitempty"`
}

func (s *Server) handleMediaCommand(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookupMedia(w, r)
	if !ok {
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	var err error
	switch req.Command {
	case "play":
		err = m.Play(ctx)
	case "pause":
		err = m.Pause(ctx)
	case "stop":
		err = m.Stop(ctx)
	case "seek":
		err = m.Seek(ctx, req.CurrentTime, "")
	case "setVolume":
		err = m.SetVolume(ctx, req.Level, req.Muted)
	case "setPlaybackRate":
		if req.PlaybackRate == nil {
			writeError(w, http.StatusBadRequest, "playbackRate is required")
			return
		}
		err = m.SetPlaybackRate(ctx, *req.PlaybackRate)
	default:
		writeError(w, http.StatusBadRequest, "unknown command")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
