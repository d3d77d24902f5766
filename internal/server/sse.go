package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/wilcooo/fx-cast/internal/session"
)

// handleMediaSSE streams the media view on every update. New entities
// picked up mid-stream get their own update listener; media entities are
// never removed, so attached listeners only need handler-scoped cleanup.
func (s *Server) handleMediaSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	changed := make(chan struct{}, 1)
	ping := func(bool) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	// attach runs on the session dispatch goroutine for entities created
	// mid-stream, so the bookkeeping needs its own lock.
	type attached struct {
		media *session.Media
		id    int
	}
	var mu sync.Mutex
	var listeners []attached
	attach := func(m *session.Media) {
		id := m.AddUpdateListener(ping)
		mu.Lock()
		listeners = append(listeners, attached{media: m, id: id})
		mu.Unlock()
	}
	for _, m := range s.session.MediaEntities() {
		attach(m)
	}
	createdID := s.session.AddMediaListener(func(m *session.Media) {
		attach(m)
		ping(true)
	})
	defer func() {
		s.session.RemoveMediaListener(createdID)
		mu.Lock()
		for _, a := range listeners {
			a.media.RemoveUpdateListener(a.id)
		}
		mu.Unlock()
	}()

	send := func() {
		data, err := json.Marshal(s.mediaViews())
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	send()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.session.Done():
			return
		case <-changed:
			send()
		}
	}
}
