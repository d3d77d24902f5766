package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilcooo/fx-cast/internal/bridge"
	"github.com/wilcooo/fx-cast/internal/message"
	"github.com/wilcooo/fx-cast/internal/models"
)

type fakeBridge struct {
	mu       sync.Mutex
	sent     []bridge.Payload
	sendErr  error
	messages chan bridge.Message
	replies  chan bridge.Reply
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		messages: make(chan bridge.Message, 16),
		replies:  make(chan bridge.Reply, 16),
	}
}

func (b *fakeBridge) SendToReceiver(p bridge.Payload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, p)
	return nil
}

func (b *fakeBridge) Messages() <-chan bridge.Message { return b.messages }
func (b *fakeBridge) Replies() <-chan bridge.Reply    { return b.replies }

func (b *fakeBridge) sentPayloads() []bridge.Payload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bridge.Payload(nil), b.sent...)
}

// waitSent blocks until at least n frames have been sent.
func (b *fakeBridge) waitSent(t *testing.T, n int) bridge.Payload {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(b.sentPayloads()) >= n
	}, time.Second, 5*time.Millisecond)
	return b.sentPayloads()[n-1]
}

func (b *fakeBridge) pushMediaStatus(t *testing.T, snapshots ...map[string]any) {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"type":   "MEDIA_STATUS",
		"status": snapshots,
	})
	require.NoError(t, err)
	b.messages <- bridge.Message{Namespace: message.NamespaceMedia, Data: data}
}

func testApp() models.Application {
	return models.Application{
		AppID:       "CC1AD845",
		SessionID:   "session-1",
		TransportID: "transport-1",
		StatusText:  "Ready To Cast",
		Namespaces:  []models.Namespace{{Name: message.NamespaceMedia}},
	}
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *fakeBridge) {
	t.Helper()
	b := newFakeBridge()
	s := New(b, testApp(), opts...)
	t.Cleanup(func() { s.Close(nil) })
	return s, b
}

func TestFirstSightCreatesMediaExactlyOnce(t *testing.T) {
	s, b := newTestSession(t)

	var mu sync.Mutex
	created := 0
	s.AddMediaListener(func(m *Media) {
		mu.Lock()
		created++
		mu.Unlock()
	})

	b.pushMediaStatus(t, map[string]any{"mediaSessionId": 1, "playerState": "BUFFERING"})
	require.Eventually(t, func() bool {
		_, ok := s.Media(1)
		return ok
	}, time.Second, 5*time.Millisecond)

	b.pushMediaStatus(t, map[string]any{"mediaSessionId": 1, "playerState": "PLAYING"})
	require.Eventually(t, func() bool {
		m, _ := s.Media(1)
		return m.State().PlayerState == models.PlayerStatePlaying
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, created, "media-created listener fired more than once")
	assert.Len(t, s.MediaEntities(), 1)
}

func TestBatchProcessesAllSnapshots(t *testing.T) {
	s, b := newTestSession(t)

	b.pushMediaStatus(t,
		map[string]any{"mediaSessionId": 1, "playerState": "PLAYING"},
		map[string]any{"mediaSessionId": 2, "playerState": "BUFFERING"},
	)
	require.Eventually(t, func() bool {
		return len(s.MediaEntities()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestFirstStatusOnlyTruncatesBatch(t *testing.T) {
	s, b := newTestSession(t, WithFirstStatusOnly())

	b.pushMediaStatus(t,
		map[string]any{"mediaSessionId": 1, "playerState": "PLAYING"},
		map[string]any{"mediaSessionId": 2, "playerState": "BUFFERING"},
	)
	require.Eventually(t, func() bool {
		_, ok := s.Media(1)
		return ok
	}, time.Second, 5*time.Millisecond)

	// Give the dispatch loop a chance to (incorrectly) process the rest.
	time.Sleep(50 * time.Millisecond)
	_, ok := s.Media(2)
	assert.False(t, ok, "second snapshot should be dropped in first-status-only mode")
}

func TestBuiltInMediaHandlerRunsAlongsideUserListeners(t *testing.T) {
	s, b := newTestSession(t)

	userCalled := make(chan struct{}, 1)
	s.AddMessageListener(message.NamespaceMedia, func(ns string, data json.RawMessage) {
		select {
		case userCalled <- struct{}{}:
		default:
		}
	})

	b.pushMediaStatus(t, map[string]any{"mediaSessionId": 5, "playerState": "PLAYING"})

	select {
	case <-userCalled:
	case <-time.After(time.Second):
		t.Fatal("user listener not invoked")
	}
	require.Eventually(t, func() bool {
		_, ok := s.Media(5)
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestRemovedMessageListenerStopsFiring(t *testing.T) {
	s, b := newTestSession(t)

	var mu sync.Mutex
	calls := 0
	id := s.AddMessageListener(message.NamespaceMedia, func(ns string, data json.RawMessage) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	b.pushMediaStatus(t, map[string]any{"mediaSessionId": 1})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 5*time.Millisecond)

	s.RemoveMessageListener(message.NamespaceMedia, id)
	b.pushMediaStatus(t, map[string]any{"mediaSessionId": 1})
	require.Eventually(t, func() bool {
		m, _ := s.Media(1)
		return m != nil
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestLoadMediaEndToEnd(t *testing.T) {
	s, b := newTestSession(t)

	autoplay := true
	type loadResult struct {
		media *Media
		err   error
	}
	results := make(chan loadResult, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m, err := s.LoadMedia(ctx, models.LoadRequest{
			Media:    models.MediaInformation{ContentID: "http://vid/movie.mp4", ContentType: "video/mp4"},
			Autoplay: &autoplay,
		})
		results <- loadResult{media: m, err: err}
	}()

	frame := b.waitSent(t, 1)
	assert.Equal(t, message.NamespaceMedia, frame.Namespace)
	assert.Equal(t, "transport-1", frame.DestinationID)
	require.NotZero(t, frame.RequestID)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(frame.Data, &wire))
	assert.Equal(t, "LOAD", wire["type"])
	// Media channel envelopes carry requestId 0 on the wire.
	assert.Equal(t, float64(0), wire["requestId"])

	reply, err := json.Marshal(map[string]any{
		"type": "MEDIA_STATUS",
		"status": []map[string]any{{
			"mediaSessionId": 42,
			"playerState":    "BUFFERING",
			"currentTime":    0,
			"media":          map[string]any{"contentId": "http://vid/movie.mp4"},
		}},
	})
	require.NoError(t, err)
	b.replies <- bridge.Reply{RequestID: frame.RequestID, Data: reply}

	res := <-results
	require.NoError(t, res.err)
	require.NotNil(t, res.media)
	assert.Equal(t, 42, res.media.MediaSessionID)
	assert.Equal(t, "session-1", res.media.SessionID)

	state := res.media.State()
	assert.Equal(t, models.PlayerStateBuffering, state.PlayerState)
	require.NotNil(t, state.Media)
	assert.Equal(t, "http://vid/movie.mp4", state.Media.ContentID)

	// The entity is registered with the session, not just returned.
	m, ok := s.Media(42)
	require.True(t, ok)
	assert.Same(t, res.media, m)
}

func TestReceiverErrorReplySurfacesAsError(t *testing.T) {
	s, b := newTestSession(t)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errCh <- s.SetReceiverVolumeLevel(ctx, 0.8)
	}()

	frame := b.waitSent(t, 1)
	assert.Equal(t, message.NamespaceReceiver, frame.Namespace)
	assert.Equal(t, "receiver-0", frame.DestinationID)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(frame.Data, &wire))
	assert.Equal(t, "SET_VOLUME", wire["type"])
	// Receiver channel envelopes carry the correlation id itself.
	assert.Equal(t, float64(frame.RequestID), wire["requestId"])

	reply, _ := json.Marshal(map[string]any{"type": "INVALID_REQUEST", "reason": "INVALID_VOLUME"})
	b.replies <- bridge.Reply{RequestID: frame.RequestID, Data: reply}

	err := <-errCh
	var recvErr *message.ReceiverError
	require.ErrorAs(t, err, &recvErr)
	assert.Equal(t, "INVALID_REQUEST", recvErr.Type)
	assert.Equal(t, "INVALID_VOLUME", recvErr.Reason)
}

func TestGetReceiverStatusUpdatesSession(t *testing.T) {
	s, b := newTestSession(t)

	updated := make(chan bool, 1)
	s.AddUpdateListener(func(fromReceiver bool) {
		select {
		case updated <- fromReceiver:
		default:
		}
	})

	statusCh := make(chan *models.ReceiverStatus, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rs, err := s.GetReceiverStatus(ctx)
		if err != nil {
			statusCh <- nil
			return
		}
		statusCh <- rs
	}()

	frame := b.waitSent(t, 1)
	reply, _ := json.Marshal(map[string]any{
		"type": "RECEIVER_STATUS",
		"status": map[string]any{
			"applications": []map[string]any{{
				"appId":       "CC1AD845",
				"sessionId":   "session-1",
				"transportId": "transport-1",
				"statusText":  "Now Casting",
				"namespaces":  []map[string]any{{"name": "urn:x-cast:com.example.custom"}},
			}},
			"volume": map[string]any{"level": 0.35, "muted": false},
		},
	})
	b.replies <- bridge.Reply{RequestID: frame.RequestID, Data: reply}

	rs := <-statusCh
	require.NotNil(t, rs)
	assert.Equal(t, "Now Casting", s.StatusText())
	assert.True(t, s.HasNamespace("urn:x-cast:com.example.custom"))
	require.NotNil(t, s.Volume())
	assert.InDelta(t, 0.35, *s.Volume().Level, 1e-9)

	select {
	case fromReceiver := <-updated:
		assert.True(t, fromReceiver)
	case <-time.After(time.Second):
		t.Fatal("session update listener not invoked")
	}
}

func TestGetAppAvailability(t *testing.T) {
	s, b := newTestSession(t)

	resCh := make(chan map[string]bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		avail, err := s.GetAppAvailability(ctx, []string{"CC1AD845", "DEADBEEF"})
		if err != nil {
			avail = nil
		}
		resCh <- avail
	}()

	frame := b.waitSent(t, 1)
	reply, _ := json.Marshal(map[string]any{
		"type": "GET_APP_AVAILABILITY",
		"availability": map[string]any{
			"CC1AD845": "APP_AVAILABLE",
			"DEADBEEF": "APP_UNAVAILABLE",
		},
	})
	b.replies <- bridge.Reply{RequestID: frame.RequestID, Data: reply}

	avail := <-resCh
	assert.True(t, avail["CC1AD845"])
	assert.False(t, avail["DEADBEEF"])
}

func TestStopTransitionsSession(t *testing.T) {
	s, b := newTestSession(t)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errCh <- s.Stop(ctx)
	}()

	frame := b.waitSent(t, 1)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(frame.Data, &wire))
	assert.Equal(t, "STOP", wire["type"])
	assert.Equal(t, "session-1", wire["sessionId"])

	b.replies <- bridge.Reply{RequestID: frame.RequestID, Data: json.RawMessage(`{"type":"RECEIVER_STATUS","status":{}}`)}

	require.NoError(t, <-errCh)
	assert.Equal(t, models.SessionStopped, s.Status())
}

func TestCloseRejectsOutstandingRequests(t *testing.T) {
	s, b := newTestSession(t)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := s.GetReceiverStatus(ctx)
		errCh <- err
	}()

	b.waitSent(t, 1)
	s.Close(nil)

	err := <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSessionClosed)
	assert.Equal(t, models.SessionDisconnected, s.Status())

	select {
	case <-s.Done():
	default:
		t.Error("Done not closed")
	}
}

func TestBridgeShutdownClosesSession(t *testing.T) {
	b := newFakeBridge()
	s := New(b, testApp())

	close(b.messages)
	close(b.replies)

	require.Eventually(t, func() bool {
		select {
		case <-s.Done():
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.SessionDisconnected, s.Status())
}

func TestSendFailurePropagates(t *testing.T) {
	s, b := newTestSession(t)
	b.mu.Lock()
	b.sendErr = errors.New("transport down")
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.SetReceiverMuted(ctx, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport down")
}

func TestSendMessageGenericNamespace(t *testing.T) {
	s, b := newTestSession(t)

	cmd := &message.Header{Type: "CUSTOM"}
	pend, err := s.SendMessage("urn:x-cast:com.example.custom", cmd)
	require.NoError(t, err)

	frame := b.waitSent(t, 1)
	assert.Equal(t, "urn:x-cast:com.example.custom", frame.Namespace)
	assert.Equal(t, pend.ID(), frame.RequestID)
	assert.Equal(t, pend.ID(), cmd.RequestID, "non-media namespaces carry the wire id")
}

func TestMediaSessionIDCollisionAcrossBatches(t *testing.T) {
	s, b := newTestSession(t)

	// Same id in consecutive batches maps onto one entity whose state
	// accumulates across merges.
	b.pushMediaStatus(t, map[string]any{"mediaSessionId": 3, "playbackRate": 1.25})
	b.pushMediaStatus(t, map[string]any{"mediaSessionId": 3, "playerState": "PLAYING"})

	require.Eventually(t, func() bool {
		m, ok := s.Media(3)
		if !ok {
			return false
		}
		st := m.State()
		return st.PlayerState == models.PlayerStatePlaying && st.PlaybackRate == 1.25
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, s.MediaEntities(), 1)
}

func TestMediaEntitiesKeepFirstSeenOrder(t *testing.T) {
	s, b := newTestSession(t)

	for _, id := range []int{7, 3, 9} {
		b.pushMediaStatus(t, map[string]any{"mediaSessionId": id})
	}
	require.Eventually(t, func() bool {
		return len(s.MediaEntities()) == 3
	}, time.Second, 5*time.Millisecond)

	var ids []int
	for _, m := range s.MediaEntities() {
		ids = append(ids, m.MediaSessionID)
	}
	assert.Equal(t, []int{7, 3, 9}, ids)
}

func TestSenderIDStampedOnFrames(t *testing.T) {
	s, b := newTestSession(t, WithSenderID("sender-test"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _ = s.GetReceiverStatus(ctx) // times out, frame still sent

	frame := b.waitSent(t, 1)
	assert.Equal(t, "sender-test", frame.SenderID)
}

func ExampleSession_AddMediaListener() {
	b := newFakeBridge()
	s := New(b, models.Application{SessionID: "s", TransportID: "t"})
	defer s.Close(nil)

	seen := make(chan int, 1)
	s.AddMediaListener(func(m *Media) { seen <- m.MediaSessionID })

	data, _ := json.Marshal(map[string]any{
		"type":   "MEDIA_STATUS",
		"status": []map[string]any{{"mediaSessionId": 8}},
	})
	b.messages <- bridge.Message{Namespace: message.NamespaceMedia, Data: data}

	fmt.Println(<-seen)
	// Output: 8
}
