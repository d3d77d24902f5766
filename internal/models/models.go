package models

import "errors"

var ErrSessionClosed = errors.New("session closed")
var ErrBridgeClosed = errors.New("bridge closed")

// SessionStatus tracks the lifecycle of a receiver connection. The
// transition is one-way: a disconnected session is never reused.
type SessionStatus string

const (
	SessionConnected    SessionStatus = "CONNECTED"
	SessionDisconnected SessionStatus = "DISCONNECTED"
	SessionStopped      SessionStatus = "STOPPED"
)

type PlayerState string

const (
	PlayerStateIdle      PlayerState = "IDLE"
	PlayerStateBuffering PlayerState = "BUFFERING"
	PlayerStatePaused    PlayerState = "PAUSED"
	PlayerStatePlaying   PlayerState = "PLAYING"
)

type IdleReason string

const (
	IdleReasonCancelled   IdleReason = "CANCELLED"
	IdleReasonInterrupted IdleReason = "INTERRUPTED"
	IdleReasonFinished    IdleReason = "FINISHED"
	IdleReasonError       IdleReason = "ERROR"
)

type RepeatMode string

const (
	RepeatModeOff           RepeatMode = "REPEAT_OFF"
	RepeatModeAll           RepeatMode = "REPEAT_ALL"
	RepeatModeSingle        RepeatMode = "REPEAT_SINGLE"
	RepeatModeAllAndShuffle RepeatMode = "REPEAT_ALL_AND_SHUFFLE"
)

type ResumeState string

const (
	ResumeStateStart ResumeState = "PLAYBACK_START"
	ResumeStatePause ResumeState = "PLAYBACK_PAUSE"
)

type StreamType string

const (
	StreamTypeBuffered StreamType = "BUFFERED"
	StreamTypeLive     StreamType = "LIVE"
	StreamTypeOther    StreamType = "OTHER"
)

// MediaCommand is a capability the receiver advertises for the current
// media, decoded from the supportedMediaCommands bitmask.
type MediaCommand string

const (
	CommandPause        MediaCommand = "pause"
	CommandSeek         MediaCommand = "seek"
	CommandStreamVolume MediaCommand = "stream_volume"
	CommandStreamMute   MediaCommand = "stream_mute"
	CommandQueueNext    MediaCommand = "queue_next"
	CommandQueuePrev    MediaCommand = "queue_prev"
)

// Volume carries stream-level volume. Both fields are optional on the
// wire; nil means "not reported in this message".
type Volume struct {
	Level *float64 `json:"level,omitempty"`
	Muted *bool    `json:"muted,omitempty"`
}

type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

type Track struct {
	TrackID          int            `json:"trackId"`
	Type             string         `json:"type"`
	TrackContentID   string         `json:"trackContentId,omitempty"`
	TrackContentType string         `json:"trackContentType,omitempty"`
	Subtype          string         `json:"subtype,omitempty"`
	Name             string         `json:"name,omitempty"`
	Language         string         `json:"language,omitempty"`
	CustomData       map[string]any `json:"customData,omitempty"`
}

type TextTrackStyle struct {
	ForegroundColor string         `json:"foregroundColor,omitempty"`
	BackgroundColor string         `json:"backgroundColor,omitempty"`
	EdgeType        string         `json:"edgeType,omitempty"`
	EdgeColor       string         `json:"edgeColor,omitempty"`
	FontFamily      string         `json:"fontFamily,omitempty"`
	FontScale       *float64       `json:"fontScale,omitempty"`
	CustomData      map[string]any `json:"customData,omitempty"`
}

// MediaInformation describes the content loaded on the receiver.
type MediaInformation struct {
	ContentID      string          `json:"contentId"`
	ContentType    string          `json:"contentType,omitempty"`
	StreamType     StreamType      `json:"streamType,omitempty"`
	Duration       *float64        `json:"duration,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	Tracks         []Track         `json:"tracks,omitempty"`
	TextTrackStyle *TextTrackStyle `json:"textTrackStyle,omitempty"`
	CustomData     map[string]any  `json:"customData,omitempty"`
}

// QueueItem is one entry of the receiver-side playback queue. Media may
// be absent on the wire for items the receiver has already described;
// the merge engine backfills it from previously known state.
type QueueItem struct {
	ItemID           int               `json:"itemId"`
	Media            *MediaInformation `json:"media,omitempty"`
	Autoplay         *bool             `json:"autoplay,omitempty"`
	StartTime        *float64          `json:"startTime,omitempty"`
	PlaybackDuration *float64          `json:"playbackDuration,omitempty"`
	PreloadTime      *float64          `json:"preloadTime,omitempty"`
	ActiveTrackIDs   []int             `json:"activeTrackIds,omitempty"`
	CustomData       map[string]any    `json:"customData,omitempty"`
}

// LoadRequest is the caller-facing description of a LOAD command.
type LoadRequest struct {
	Media          MediaInformation `json:"media"`
	Autoplay       *bool            `json:"autoplay,omitempty"`
	CurrentTime    *float64         `json:"currentTime,omitempty"`
	ActiveTrackIDs []int            `json:"activeTrackIds,omitempty"`
	CustomData     map[string]any   `json:"customData,omitempty"`
}

type Namespace struct {
	Name string `json:"name"`
}

// Application is the receiver-reported description of a running app,
// delivered inside RECEIVER_STATUS.
type Application struct {
	AppID        string      `json:"appId"`
	DisplayName  string      `json:"displayName,omitempty"`
	IconURL      string      `json:"iconUrl,omitempty"`
	IsIdleScreen bool        `json:"isIdleScreen,omitempty"`
	SessionID    string      `json:"sessionId"`
	StatusText   string      `json:"statusText,omitempty"`
	TransportID  string      `json:"transportId"`
	Namespaces   []Namespace `json:"namespaces,omitempty"`

	SenderApps []SenderApplication `json:"senderApps,omitempty"`
}

type SenderApplication struct {
	Platform  string `json:"platform"`
	PackageID string `json:"packageId,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ReceiverVolume is the device-level volume reported and set on the
// receiver channel, distinct from per-stream Volume.
type ReceiverVolume struct {
	Level        *float64 `json:"level,omitempty"`
	Muted        *bool    `json:"muted,omitempty"`
	ControlType  string   `json:"controlType,omitempty"`
	StepInterval float64  `json:"stepInterval,omitempty"`
}

type ReceiverStatus struct {
	Applications  []Application   `json:"applications,omitempty"`
	Volume        *ReceiverVolume `json:"volume,omitempty"`
	IsActiveInput bool            `json:"isActiveInput,omitempty"`
	IsStandBy     bool            `json:"isStandBy,omitempty"`
}
