package session

import (
	"context"

	"github.com/wilcooo/fx-cast/internal/envelope"
	"github.com/wilcooo/fx-cast/internal/message"
	"github.com/wilcooo/fx-cast/internal/models"
	"github.com/wilcooo/fx-cast/internal/status"
)

// sendFunc issues one command on the owning session's media channel and
// returns its pending handle.
type sendFunc func(cmd envelope.Outbound) (*envelope.Pending, error)

// Media mirrors one remote playback item. All state mutation flows
// through the owning session's inbound dispatch; commands only talk to
// the receiver and wait for their correlated reply.
type Media struct {
	// SessionID is a non-owning back-reference to the session this
	// entity belongs to.
	SessionID      string
	MediaSessionID int

	session *Session
	send    sendFunc

	state   status.MediaState
	updates updateListeners
}

func newMedia(s *Session, mediaSessionID int, send sendFunc) *Media {
	return &Media{
		SessionID:      s.SessionID,
		MediaSessionID: mediaSessionID,
		session:        s,
		send:           send,
		state:          status.MediaState{MediaSessionID: mediaSessionID},
	}
}

// State returns a copy of the mirrored state.
func (m *Media) State() status.MediaState {
	m.session.mu.Lock()
	defer m.session.mu.Unlock()
	return m.state
}

// GetEstimatedTime extrapolates the playback position from the last
// reported currentTime. Only a PLAYING stream advances.
func (m *Media) GetEstimatedTime() float64 {
	m.session.mu.Lock()
	defer m.session.mu.Unlock()
	if m.state.PlayerState != models.PlayerStatePlaying || m.state.LastUpdateTime.IsZero() {
		return m.state.CurrentTime
	}
	elapsed := timeNow().Sub(m.state.LastUpdateTime).Seconds()
	rate := m.state.PlaybackRate
	if rate == 0 {
		rate = 1
	}
	return m.state.CurrentTime + elapsed*rate
}

func (m *Media) AddUpdateListener(fn UpdateListener) int { return m.updates.add(fn) }
func (m *Media) RemoveUpdateListener(id int)             { m.updates.remove(id) }

// apply merges a snapshot and fans out to update listeners. Called only
// from the owning session's dispatch path.
func (m *Media) apply(snap *status.Snapshot, fromReceiver bool) {
	m.session.mu.Lock()
	status.Merge(&m.state, snap)
	m.session.mu.Unlock()
	m.updates.notify(fromReceiver)
}

func (m *Media) header(t string) message.MediaHeader {
	return message.MediaHeader{
		Header:         message.Header{Type: t},
		MediaSessionID: m.MediaSessionID,
	}
}

// do sends one command and blocks until the receiver replies or ctx is
// cancelled.
func (m *Media) do(ctx context.Context, cmd envelope.Outbound) error {
	pend, err := m.send(cmd)
	if err != nil {
		return err
	}
	_, err = pend.Wait(ctx)
	return err
}

func (m *Media) Play(ctx context.Context) error {
	return m.do(ctx, &message.Play{MediaHeader: m.header(message.TypePlay)})
}

func (m *Media) Pause(ctx context.Context) error {
	return m.do(ctx, &message.Pause{MediaHeader: m.header(message.TypePause)})
}

func (m *Media) Stop(ctx context.Context) error {
	return m.do(ctx, &message.MediaStop{MediaHeader: m.header(message.TypeMediaStop)})
}

func (m *Media) GetStatus(ctx context.Context) error {
	return m.do(ctx, &message.MediaGetStatus{MediaHeader: m.header(message.TypeMediaGetStatus)})
}

// SetVolume adjusts the stream volume. Nil fields are left out of the
// command and unchanged on the receiver.
func (m *Media) SetVolume(ctx context.Context, level *float64, muted *bool) error {
	return m.do(ctx, &message.MediaSetVolume{
		MediaHeader: m.header(message.TypeMediaSetVolume),
		Volume:      models.Volume{Level: level, Muted: muted},
	})
}

func (m *Media) SetPlaybackRate(ctx context.Context, rate float64) error {
	return m.do(ctx, &message.SetPlaybackRate{
		MediaHeader:  m.header(message.TypeSetPlaybackRate),
		PlaybackRate: rate,
	})
}

func (m *Media) Seek(ctx context.Context, currentTime *float64, resumeState models.ResumeState) error {
	return m.do(ctx, &message.Seek{
		MediaHeader: m.header(message.TypeSeek),
		CurrentTime: currentTime,
		ResumeState: resumeState,
	})
}

func (m *Media) EditTracksInfo(ctx context.Context, activeTrackIDs []int, style *models.TextTrackStyle) error {
	return m.do(ctx, &message.EditTracksInfo{
		MediaHeader:    m.header(message.TypeEditTracksInfo),
		ActiveTrackIDs: activeTrackIDs,
		TextTrackStyle: style,
	})
}

func (m *Media) QueueInsert(ctx context.Context, items []models.QueueItem, insertBefore *int) error {
	return m.do(ctx, &message.QueueInsert{
		MediaHeader:  m.header(message.TypeQueueInsert),
		Items:        items,
		InsertBefore: insertBefore,
	})
}

func (m *Media) QueueUpdate(ctx context.Context, items []models.QueueItem, currentItemID *int) error {
	return m.do(ctx, &message.QueueUpdate{
		MediaHeader:   m.header(message.TypeQueueUpdate),
		Items:         items,
		CurrentItemID: currentItemID,
	})
}

// QueueJump moves by jump positions in the queue; negative values go
// backwards. A QUEUE_UPDATE variant.
func (m *Media) QueueJump(ctx context.Context, jump int) error {
	return m.do(ctx, &message.QueueUpdate{
		MediaHeader: m.header(message.TypeQueueUpdate),
		Jump:        &jump,
	})
}

// QueueSetProperties changes queue-wide behavior. A QUEUE_UPDATE variant
// carrying neither items nor a jump.
func (m *Media) QueueSetProperties(ctx context.Context, repeatMode models.RepeatMode, shuffle *bool) error {
	return m.do(ctx, &message.QueueUpdate{
		MediaHeader: m.header(message.TypeQueueUpdate),
		RepeatMode:  repeatMode,
		Shuffle:     shuffle,
	})
}

func (m *Media) QueueRemove(ctx context.Context, itemIDs []int) error {
	return m.do(ctx, &message.QueueRemove{
		MediaHeader: m.header(message.TypeQueueRemove),
		ItemIDs:     itemIDs,
	})
}

func (m *Media) QueueReorder(ctx context.Context, itemIDs []int, insertBefore *int) error {
	return m.do(ctx, &message.QueueReorder{
		MediaHeader:  m.header(message.TypeQueueReorder),
		ItemIDs:      itemIDs,
		InsertBefore: insertBefore,
	})
}
