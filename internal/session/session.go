// Package session keeps a local mirror of one receiver connection: the
// session's own fields, its media entities, and the listeners observing
// them. Inbound messages and reply correlation run on a single dispatch
// goroutine, so handlers never race each other.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wilcooo/fx-cast/internal/bridge"
	"github.com/wilcooo/fx-cast/internal/envelope"
	"github.com/wilcooo/fx-cast/internal/message"
	"github.com/wilcooo/fx-cast/internal/models"
	"github.com/wilcooo/fx-cast/internal/status"
)

// receiverDest is the fixed destination of receiver-channel commands.
const receiverDest = "receiver-0"

// overridable in tests
var timeNow = time.Now

// Session owns the mirrored state of one receiver connection. It is the
// sole owner of its media entities; nothing outside the session mutates
// them directly.
type Session struct {
	SessionID   string
	AppID       string
	TransportID string
	DisplayName string

	senderID string
	bridge   bridge.Bridge
	router   *envelope.Router

	mu         sync.Mutex
	status     models.SessionStatus
	statusText string
	namespaces map[string]struct{}
	senderApps []models.SenderApplication
	volume     *models.ReceiverVolume
	media      map[int]*Media
	mediaOrder []int

	msgListeners    messageListeners
	sessionUpdates  updateListeners
	mediaCreated    mediaListeners
	firstStatusOnly bool

	closeOnce sync.Once
	done      chan struct{}
}

type Option func(*Session)

// WithFirstStatusOnly handles only the first snapshot of a MEDIA_STATUS
// batch, for receivers whose batches are known to repeat the same entry.
func WithFirstStatusOnly() Option {
	return func(s *Session) { s.firstStatusOnly = true }
}

// WithSenderID overrides the generated sender id stamped on outbound
// frames.
func WithSenderID(id string) Option {
	return func(s *Session) { s.senderID = id }
}

// New builds a session mirror for an application the connection
// handshake already established, and starts its dispatch loop.
func New(b bridge.Bridge, app models.Application, opts ...Option) *Session {
	s := &Session{
		SessionID:   app.SessionID,
		AppID:       app.AppID,
		TransportID: app.TransportID,
		DisplayName: app.DisplayName,
		senderID:    newSenderID(),
		bridge:      b,
		status:      models.SessionConnected,
		statusText:  app.StatusText,
		senderApps:  app.SenderApps,
		namespaces:  make(map[string]struct{}, len(app.Namespaces)),
		media:       make(map[int]*Media),
		done:        make(chan struct{}),
	}
	for _, ns := range app.Namespaces {
		s.namespaces[ns.Name] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = envelope.NewRouter(b.SendToReceiver)

	// The media-namespace handler is part of the session itself and
	// runs for every matching inbound message, before user listeners.
	s.msgListeners.add(message.NamespaceMedia, s.handleMediaMessage)

	go s.run()
	return s
}

func newSenderID() string {
	return "sender-" + uuid.NewString()
}

func (s *Session) Status() models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) StatusText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusText
}

func (s *Session) Volume() *models.ReceiverVolume {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Session) Namespaces() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.namespaces))
	for ns := range s.namespaces {
		out = append(out, ns)
	}
	return out
}

func (s *Session) HasNamespace(ns string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.namespaces[ns]
	return ok
}

func (s *Session) SenderApplications() []models.SenderApplication {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SenderApplication(nil), s.senderApps...)
}

// Media looks up an entity by its media session id.
func (s *Session) Media(mediaSessionID int) (*Media, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[mediaSessionID]
	return m, ok
}

// MediaEntities returns every known entity in first-seen order.
// Entities are never removed; terminal playback shows up as IDLE state,
// not as absence.
func (s *Session) MediaEntities() []*Media {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Media, 0, len(s.mediaOrder))
	for _, id := range s.mediaOrder {
		out = append(out, s.media[id])
	}
	return out
}

func (s *Session) AddMessageListener(namespace string, fn MessageListener) int {
	return s.msgListeners.add(namespace, fn)
}

func (s *Session) RemoveMessageListener(namespace string, id int) {
	s.msgListeners.remove(namespace, id)
}

func (s *Session) AddUpdateListener(fn UpdateListener) int { return s.sessionUpdates.add(fn) }
func (s *Session) RemoveUpdateListener(id int)             { s.sessionUpdates.remove(id) }

// AddMediaListener registers a callback for the first sight of each new
// media session id.
func (s *Session) AddMediaListener(fn MediaListener) int { return s.mediaCreated.add(fn) }
func (s *Session) RemoveMediaListener(id int)            { s.mediaCreated.remove(id) }

// Done is closed when the session disconnects.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close transitions the session to DISCONNECTED and rejects every
// outstanding request. Idempotent; the transition is one-way.
func (s *Session) Close(err error) {
	s.closeOnce.Do(func() {
		if err == nil {
			err = models.ErrSessionClosed
		}
		s.mu.Lock()
		s.status = models.SessionDisconnected
		s.mu.Unlock()
		s.router.Close(err)
		close(s.done)
		s.sessionUpdates.notify(false)
	})
}

func (s *Session) run() {
	for {
		select {
		case msg, ok := <-s.bridge.Messages():
			if !ok {
				s.Close(models.ErrBridgeClosed)
				return
			}
			s.msgListeners.dispatch(msg.Namespace, msg.Data)
		case rep, ok := <-s.bridge.Replies():
			if !ok {
				s.Close(models.ErrBridgeClosed)
				return
			}
			s.handleReply(rep)
		case <-s.done:
			return
		}
	}
}

func (s *Session) handleReply(rep bridge.Reply) {
	if rep.Err != nil {
		s.router.Reject(rep.RequestID, rep.Err)
		return
	}
	if recvErr := message.ReplyError(rep.Data); recvErr != nil {
		s.router.Reject(rep.RequestID, recvErr)
		return
	}
	s.router.Resolve(rep.RequestID, rep.Data)
}

// handleMediaMessage is the built-in media-namespace listener.
func (s *Session) handleMediaMessage(_ string, data json.RawMessage) {
	decoded, err := message.Decode(data)
	if err != nil {
		log.Printf("session %s: ignoring media message: %v", s.SessionID, err)
		return
	}
	msg, ok := decoded.(*message.MediaStatusMessage)
	if !ok {
		return
	}
	s.applyMediaStatus(msg.Status, true)
}

// applyMediaStatus reconciles a batch of snapshots: entities are created
// on first sight of a media session id, then merged and fanned out.
func (s *Session) applyMediaStatus(snaps []status.Snapshot, fromReceiver bool) []*Media {
	if s.firstStatusOnly && len(snaps) > 1 {
		snaps = snaps[:1]
	}
	touched := make([]*Media, 0, len(snaps))
	for i := range snaps {
		snap := &snaps[i]
		if snap.MediaSessionID == nil {
			log.Printf("session %s: status snapshot without mediaSessionId", s.SessionID)
			continue
		}
		id := *snap.MediaSessionID

		s.mu.Lock()
		m, ok := s.media[id]
		if !ok {
			m = newMedia(s, id, s.sendMedia)
			s.media[id] = m
			s.mediaOrder = append(s.mediaOrder, id)
		}
		s.mu.Unlock()

		if !ok {
			s.mediaCreated.notify(m)
		}
		m.apply(snap, fromReceiver)
		touched = append(touched, m)
	}
	return touched
}

// sendMedia issues one media-channel command. Media-channel envelopes
// carry requestId 0 on the wire; correlation rides the bridge frame.
func (s *Session) sendMedia(cmd envelope.Outbound) (*envelope.Pending, error) {
	return s.router.Send(bridge.Payload{
		SenderID:      s.senderID,
		DestinationID: s.TransportID,
		Namespace:     message.NamespaceMedia,
	}, cmd, false)
}

// sendReceiver issues one receiver-channel command; the wire requestId
// is the correlation id itself.
func (s *Session) sendReceiver(cmd envelope.Outbound) (*envelope.Pending, error) {
	return s.router.Send(bridge.Payload{
		SenderID:      s.senderID,
		DestinationID: receiverDest,
		Namespace:     message.NamespaceReceiver,
	}, cmd, true)
}

// SendMessage is the generic escape hatch: any namespace, any payload,
// correlated like every other request.
func (s *Session) SendMessage(namespace string, cmd envelope.Outbound) (*envelope.Pending, error) {
	return s.router.Send(bridge.Payload{
		SenderID:      s.senderID,
		DestinationID: s.TransportID,
		Namespace:     namespace,
	}, cmd, namespace != message.NamespaceMedia)
}

// GetReceiverStatus polls the receiver channel and folds the answer into
// the session's own fields.
func (s *Session) GetReceiverStatus(ctx context.Context) (*models.ReceiverStatus, error) {
	pend, err := s.sendReceiver(&message.GetStatus{Header: message.Header{Type: message.TypeGetStatus}})
	if err != nil {
		return nil, err
	}
	data, err := pend.Wait(ctx)
	if err != nil {
		return nil, err
	}
	var msg message.ReceiverStatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decoding receiver status: %w", err)
	}
	s.applyReceiverStatus(&msg.Status)
	return &msg.Status, nil
}

func (s *Session) applyReceiverStatus(rs *models.ReceiverStatus) {
	s.mu.Lock()
	if rs.Volume != nil {
		s.volume = rs.Volume
	}
	for _, app := range rs.Applications {
		if app.SessionID != s.SessionID {
			continue
		}
		s.statusText = app.StatusText
		if app.SenderApps != nil {
			s.senderApps = app.SenderApps
		}
		for _, ns := range app.Namespaces {
			s.namespaces[ns.Name] = struct{}{}
		}
	}
	s.mu.Unlock()
	s.sessionUpdates.notify(true)
}

// SetReceiverVolumeLevel sets the device volume, not a stream's.
func (s *Session) SetReceiverVolumeLevel(ctx context.Context, level float64) error {
	pend, err := s.sendReceiver(&message.SetVolume{
		Header: message.Header{Type: message.TypeSetVolume},
		Volume: models.ReceiverVolume{Level: &level},
	})
	if err != nil {
		return err
	}
	_, err = pend.Wait(ctx)
	return err
}

func (s *Session) SetReceiverMuted(ctx context.Context, muted bool) error {
	pend, err := s.sendReceiver(&message.SetVolume{
		Header: message.Header{Type: message.TypeSetVolume},
		Volume: models.ReceiverVolume{Muted: &muted},
	})
	if err != nil {
		return err
	}
	_, err = pend.Wait(ctx)
	return err
}

// Stop asks the receiver to stop the running application, then closes
// the local mirror.
func (s *Session) Stop(ctx context.Context) error {
	pend, err := s.sendReceiver(&message.StopSession{
		Header:    message.Header{Type: message.TypeStop},
		SessionID: s.SessionID,
	})
	if err != nil {
		return err
	}
	_, err = pend.Wait(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.status = models.SessionStopped
	s.mu.Unlock()
	s.sessionUpdates.notify(true)
	return nil
}

// GetAppAvailability reports which of the given app ids the receiver can
// run.
func (s *Session) GetAppAvailability(ctx context.Context, appIDs []string) (map[string]bool, error) {
	pend, err := s.sendReceiver(&message.GetAppAvailability{
		Header: message.Header{Type: message.TypeGetAppAvailability},
		AppID:  appIDs,
	})
	if err != nil {
		return nil, err
	}
	data, err := pend.Wait(ctx)
	if err != nil {
		return nil, err
	}
	var msg message.AppAvailabilityMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decoding app availability: %w", err)
	}
	out := make(map[string]bool, len(appIDs))
	for _, id := range appIDs {
		out[id] = msg.Availability[id] == message.AppAvailable
	}
	return out, nil
}

// LoadMedia sends a LOAD command and resolves with the media entity the
// echoed status created.
func (s *Session) LoadMedia(ctx context.Context, req models.LoadRequest) (*Media, error) {
	pend, err := s.sendMedia(&message.Load{
		Header:         message.Header{Type: message.TypeLoad},
		SessionID:      s.SessionID,
		Media:          req.Media,
		Autoplay:       req.Autoplay,
		CurrentTime:    req.CurrentTime,
		ActiveTrackIDs: req.ActiveTrackIDs,
		CustomData:     req.CustomData,
	})
	if err != nil {
		return nil, err
	}
	data, err := pend.Wait(ctx)
	if err != nil {
		return nil, err
	}
	var msg message.MediaStatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decoding load reply: %w", err)
	}
	touched := s.applyMediaStatus(msg.Status, true)
	if len(touched) == 0 {
		return nil, errors.New("load reply carried no media status")
	}
	return touched[0], nil
}

// QueueLoad replaces the receiver queue with the given items and
// resolves like LoadMedia.
func (s *Session) QueueLoad(ctx context.Context, items []models.QueueItem, startIndex int, repeatMode models.RepeatMode) (*Media, error) {
	pend, err := s.sendMedia(&message.QueueLoad{
		Header:     message.Header{Type: message.TypeQueueLoad},
		SessionID:  s.SessionID,
		Items:      items,
		StartIndex: startIndex,
		RepeatMode: repeatMode,
	})
	if err != nil {
		return nil, err
	}
	data, err := pend.Wait(ctx)
	if err != nil {
		return nil, err
	}
	var msg message.MediaStatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decoding queue load reply: %w", err)
	}
	touched := s.applyMediaStatus(msg.Status, true)
	if len(touched) == 0 {
		return nil, errors.New("queue load reply carried no media status")
	}
	return touched[0], nil
}
