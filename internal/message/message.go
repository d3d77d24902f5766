// Package message defines the wire payloads of the two outbound
// channels and the decoding of inbound replies and broadcasts. Payload
// shapes form a closed set: one struct per type tag, dispatched
// exhaustively in Decode.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/wilcooo/fx-cast/internal/models"
	"github.com/wilcooo/fx-cast/internal/status"
)

const (
	NamespaceReceiver = "urn:x-cast:com.google.cast.receiver"
	NamespaceMedia    = "urn:x-cast:com.google.cast.media"
)

// Receiver channel command tags.
const (
	TypeLaunch             = "LAUNCH"
	TypeStop               = "STOP"
	TypeGetStatus          = "GET_STATUS"
	TypeGetAppAvailability = "GET_APP_AVAILABILITY"
	TypeSetVolume          = "SET_VOLUME"
)

// Media channel command tags.
const (
	TypePlay            = "PLAY"
	TypePause           = "PAUSE"
	TypeMediaStop       = "STOP"
	TypeMediaGetStatus  = "MEDIA_GET_STATUS"
	TypeMediaSetVolume  = "MEDIA_SET_VOLUME"
	TypeSetPlaybackRate = "SET_PLAYBACK_RATE"
	TypeLoad            = "LOAD"
	TypeSeek            = "SEEK"
	TypeEditTracksInfo  = "EDIT_TRACKS_INFO"
	TypeQueueLoad       = "QUEUE_LOAD"
	TypeQueueInsert     = "QUEUE_INSERT"
	TypeQueueUpdate     = "QUEUE_UPDATE"
	TypeQueueRemove     = "QUEUE_REMOVE"
	TypeQueueReorder    = "QUEUE_REORDER"
)

// Inbound tags.
const (
	TypeReceiverStatus     = "RECEIVER_STATUS"
	TypeMediaStatus        = "MEDIA_STATUS"
	TypeAppAvailability    = "GET_APP_AVAILABILITY"
	TypeInvalidPlayerState = "INVALID_PLAYER_STATE"
	TypeLoadFailed         = "LOAD_FAILED"
	TypeLoadCancelled      = "LOAD_CANCELLED"
	TypeInvalidRequest     = "INVALID_REQUEST"
)

// Header is embedded in every envelope. The requestId field belongs to
// the envelope router; SetRequestID is how it claims it.
type Header struct {
	RequestID uint64 `json:"requestId"`
	Type      string `json:"type"`
}

func (h *Header) SetRequestID(id uint64) { h.RequestID = id }

// Receiver channel commands.

type Launch struct {
	Header
	AppID string `json:"appId"`
}

type StopSession struct {
	Header
	SessionID string `json:"sessionId"`
}

type GetStatus struct {
	Header
}

type GetAppAvailability struct {
	Header
	AppID []string `json:"appId"`
}

type SetVolume struct {
	Header
	Volume models.ReceiverVolume `json:"volume"`
}

// Media channel commands. MediaHeader adds the media session the command
// addresses; the wire requestId on this channel is always 0.

type MediaHeader struct {
	Header
	MediaSessionID int            `json:"mediaSessionId"`
	SessionID      string         `json:"sessionId,omitempty"`
	CustomData     map[string]any `json:"customData,omitempty"`
}

type Play struct{ MediaHeader }

type Pause struct{ MediaHeader }

type MediaStop struct{ MediaHeader }

type MediaGetStatus struct{ MediaHeader }

type MediaSetVolume struct {
	MediaHeader
	Volume models.Volume `json:"volume"`
}

type SetPlaybackRate struct {
	MediaHeader
	PlaybackRate float64 `json:"playbackRate"`
}

type Load struct {
	Header
	SessionID      string                  `json:"sessionId,omitempty"`
	Media          models.MediaInformation `json:"media"`
	Autoplay       *bool                   `json:"autoplay,omitempty"`
	CurrentTime    *float64                `json:"currentTime,omitempty"`
	ActiveTrackIDs []int                   `json:"activeTrackIds,omitempty"`
	CustomData     map[string]any          `json:"customData,omitempty"`
}

type Seek struct {
	MediaHeader
	ResumeState models.ResumeState `json:"resumeState,omitempty"`
	CurrentTime *float64           `json:"currentTime,omitempty"`
}

type EditTracksInfo struct {
	MediaHeader
	ActiveTrackIDs []int                  `json:"activeTrackIds,omitempty"`
	TextTrackStyle *models.TextTrackStyle `json:"textTrackStyle,omitempty"`
}

type QueueLoad struct {
	Header
	SessionID  string             `json:"sessionId,omitempty"`
	Items      []models.QueueItem `json:"items"`
	StartIndex int                `json:"startIndex"`
	RepeatMode models.RepeatMode  `json:"repeatMode,omitempty"`
	CustomData map[string]any     `json:"customData,omitempty"`
}

type QueueInsert struct {
	MediaHeader
	Items        []models.QueueItem `json:"items"`
	InsertBefore *int               `json:"insertBefore,omitempty"`
}

// QueueUpdate doubles as the jump and set-properties command: which
// optional fields are populated decides what the receiver does.
type QueueUpdate struct {
	MediaHeader
	Items         []models.QueueItem `json:"items,omitempty"`
	CurrentItemID *int               `json:"currentItemId,omitempty"`
	Jump          *int               `json:"jump,omitempty"`
	RepeatMode    models.RepeatMode  `json:"repeatMode,omitempty"`
	Shuffle       *bool              `json:"shuffle,omitempty"`
}

type QueueRemove struct {
	MediaHeader
	ItemIDs []int `json:"itemIds"`
}

type QueueReorder struct {
	MediaHeader
	ItemIDs      []int `json:"itemIds"`
	InsertBefore *int  `json:"insertBefore,omitempty"`
}

// Inbound messages.

type ReceiverStatusMessage struct {
	Header
	Status models.ReceiverStatus `json:"status"`
}

type MediaStatusMessage struct {
	Header
	Status []status.Snapshot `json:"status"`
}

type AppAvailabilityMessage struct {
	Header
	Availability map[string]string `json:"availability"`
}

// AppAvailable is the availability value a receiver reports for an
// installed application.
const AppAvailable = "APP_AVAILABLE"

// ReceiverError is an explicit failure reply from the receiver. It
// travels the same path as a success result, surfaced as the request's
// error.
type ReceiverError struct {
	Header
	Reason     string         `json:"reason,omitempty"`
	CustomData map[string]any `json:"customData,omitempty"`
}

func (e *ReceiverError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("receiver: %s (%s)", e.Type, e.Reason)
	}
	return fmt.Sprintf("receiver: %s", e.Type)
}

type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// Decode parses an inbound payload into its typed variant.
func Decode(data []byte) (any, error) {
	var head Header
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding message header: %w", err)
	}
	switch head.Type {
	case TypeReceiverStatus:
		var msg ReceiverStatusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", head.Type, err)
		}
		return &msg, nil
	case TypeMediaStatus:
		var msg MediaStatusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", head.Type, err)
		}
		return &msg, nil
	case TypeAppAvailability:
		var msg AppAvailabilityMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", head.Type, err)
		}
		return &msg, nil
	case TypeInvalidPlayerState, TypeLoadFailed, TypeLoadCancelled, TypeInvalidRequest:
		var msg ReceiverError
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", head.Type, err)
		}
		return &msg, nil
	default:
		return nil, &UnknownTypeError{Type: head.Type}
	}
}

// ReplyError inspects a correlated reply payload and returns the typed
// receiver error when the payload is one of the failure tags, nil
// otherwise. Payloads that do not decode at all yield nil: the reply is
// then handed to the caller raw.
func ReplyError(data []byte) *ReceiverError {
	var head Header
	if err := json.Unmarshal(data, &head); err != nil {
		return nil
	}
	switch head.Type {
	case TypeInvalidPlayerState, TypeLoadFailed, TypeLoadCancelled, TypeInvalidRequest:
		var msg ReceiverError
		if err := json.Unmarshal(data, &msg); err != nil {
			return &ReceiverError{Header: head}
		}
		return &msg
	}
	return nil
}
