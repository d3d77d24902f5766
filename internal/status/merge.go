// Package status holds the partial-snapshot merge engine. Receivers
// report only fields that changed; everything not present in a snapshot
// keeps its previously known value.
package status

import (
	"time"

	"github.com/wilcooo/fx-cast/internal/models"
)

// overridable in tests
var now = time.Now

// Snapshot is one per-media entry of a MEDIA_STATUS message. All fields
// are pointers so that a transmitted zero or false is distinguishable
// from an absent key.
type Snapshot struct {
	MediaSessionID         *int                     `json:"mediaSessionId,omitempty"`
	CurrentTime            *float64                 `json:"currentTime,omitempty"`
	CustomData             map[string]any           `json:"customData,omitempty"`
	IdleReason             *models.IdleReason       `json:"idleReason,omitempty"`
	Media                  *models.MediaInformation `json:"media,omitempty"`
	PlaybackRate           *float64                 `json:"playbackRate,omitempty"`
	PlayerState            *models.PlayerState      `json:"playerState,omitempty"`
	RepeatMode             *models.RepeatMode       `json:"repeatMode,omitempty"`
	Volume                 *models.Volume           `json:"volume,omitempty"`
	SupportedMediaCommands *int                     `json:"supportedMediaCommands,omitempty"`
	Items                  []models.QueueItem       `json:"items,omitempty"`
	CurrentItemID          *int                     `json:"currentItemId,omitempty"`
}

// MediaState is the mirrored state of one remote playback item.
type MediaState struct {
	MediaSessionID    int                      `json:"mediaSessionId"`
	CurrentTime       float64                  `json:"currentTime"`
	CustomData        map[string]any           `json:"customData,omitempty"`
	IdleReason        models.IdleReason        `json:"idleReason,omitempty"`
	Media             *models.MediaInformation `json:"media,omitempty"`
	PlaybackRate      float64                  `json:"playbackRate"`
	PlayerState       models.PlayerState       `json:"playerState"`
	RepeatMode        models.RepeatMode        `json:"repeatMode,omitempty"`
	Volume            models.Volume            `json:"volume"`
	SupportedCommands []models.MediaCommand    `json:"supportedCommands,omitempty"`
	Items             []models.QueueItem       `json:"items,omitempty"`
	CurrentItemID     int                      `json:"currentItemId"`

	// LastUpdateTime is stamped only when a snapshot carries
	// currentTime; consumers extrapolate elapsed playback from it.
	LastUpdateTime time.Time `json:"lastUpdateTime"`
}

// Merge applies a snapshot onto m in place. Absent fields never clear
// known values. The queue is replaced wholesale, with per-item media
// descriptors backfilled from the state as it was before this merge.
func Merge(m *MediaState, s *Snapshot) {
	if s.CurrentTime != nil {
		m.LastUpdateTime = now()
	}

	// Queue backfill consults the previous items and the previous
	// top-level media/currentItemId, so it runs before any scalar copy.
	var newItems []models.QueueItem
	if s.Items != nil {
		newItems = backfillItems(m, s.Items)
	}

	if s.MediaSessionID != nil {
		m.MediaSessionID = *s.MediaSessionID
	}
	if s.CurrentTime != nil {
		m.CurrentTime = *s.CurrentTime
	}
	if s.CustomData != nil {
		m.CustomData = s.CustomData
	}
	if s.IdleReason != nil {
		m.IdleReason = *s.IdleReason
	}
	if s.Media != nil {
		m.Media = s.Media
	}
	if s.PlaybackRate != nil {
		m.PlaybackRate = *s.PlaybackRate
	}
	if s.PlayerState != nil {
		m.PlayerState = *s.PlayerState
	}
	if s.RepeatMode != nil {
		m.RepeatMode = *s.RepeatMode
	}
	if s.Volume != nil {
		m.Volume = *s.Volume
	}
	if s.SupportedMediaCommands != nil {
		m.SupportedCommands = DecodeCommands(*s.SupportedMediaCommands)
	}
	if s.Items != nil {
		m.Items = newItems
	}
	if s.CurrentItemID != nil {
		m.CurrentItemID = *s.CurrentItemID
	}
}

func backfillItems(prev *MediaState, incoming []models.QueueItem) []models.QueueItem {
	prevByID := make(map[int]*models.QueueItem, len(prev.Items))
	for i := range prev.Items {
		prevByID[prev.Items[i].ItemID] = &prev.Items[i]
	}

	items := make([]models.QueueItem, len(incoming))
	copy(items, incoming)
	for i := range items {
		if items[i].Media != nil {
			continue
		}
		if old, ok := prevByID[items[i].ItemID]; ok && old.Media != nil {
			items[i].Media = old.Media
			continue
		}
		if prev.Media != nil && items[i].ItemID == prev.CurrentItemID {
			items[i].Media = prev.Media
		}
	}
	return items
}

// supportedMediaCommands bit values
const (
	bitPause        = 1 << 0
	bitSeek         = 1 << 1
	bitStreamVolume = 1 << 2
	bitStreamMute   = 1 << 3
	bitQueueNext    = 1 << 6
	bitQueuePrev    = 1 << 7
)

// DecodeCommands expands the capability bitmask into tags. Every set
// bit yields its tag; unknown bits are ignored.
func DecodeCommands(mask int) []models.MediaCommand {
	var cmds []models.MediaCommand
	if mask&bitPause != 0 {
		cmds = append(cmds, models.CommandPause)
	}
	if mask&bitSeek != 0 {
		cmds = append(cmds, models.CommandSeek)
	}
	if mask&bitStreamVolume != 0 {
		cmds = append(cmds, models.CommandStreamVolume)
	}
	if mask&bitStreamMute != 0 {
		cmds = append(cmds, models.CommandStreamMute)
	}
	if mask&bitQueueNext != 0 {
		cmds = append(cmds, models.CommandQueueNext)
	}
	if mask&bitQueuePrev != 0 {
		cmds = append(cmds, models.CommandQueuePrev)
	}
	return cmds
}
