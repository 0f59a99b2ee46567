package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Upstream live_status values.
const (
	LiveStateOff   = 0
	LiveStateLive  = 1
	LiveStateCycle = 2
)

// LiveStatus is the current state of one live room. It is replaced wholesale
// on every poll.
type LiveStatus struct {
	Target       string
	Title        string
	IsLive       bool
	LiveState    int
	RoomID       int64
	StreamerName string
	AvatarURL    string
	CoverURL     string
	KeyframeURL  string
	AreaName     string
	LiveTime     int64
	AsOf         time.Time
}

// liveStatusJSON is the persisted shape, keyed the same way as the
// live_status_<uid> records written by earlier deployments.
type liveStatusJSON struct {
	UID           json.RawMessage `json:"uid"`
	Title         string          `json:"title"`
	RoomID        int64           `json:"room_id"`
	LiveTime      int64           `json:"live_time"`
	LiveStatus    int             `json:"live_status"`
	AreaName      string          `json:"area_name,omitempty"`
	AreaV2Name    string          `json:"area_v2_name,omitempty"`
	Uname         string          `json:"uname"`
	Face          string          `json:"face"`
	Cover         string          `json:"cover,omitempty"`
	CoverFromUser string          `json:"cover_from_user,omitempty"`
	Keyframe      string          `json:"keyframe"`
	AsOf          time.Time       `json:"as_of,omitzero"`
}

func (s LiveStatus) MarshalJSON() ([]byte, error) {
	state := s.LiveState
	switch {
	case s.IsLive:
		state = LiveStateLive
	case state == LiveStateLive:
		state = LiveStateOff
	}

	uid := []byte(strconv.Quote(s.Target))
	if _, err := strconv.ParseInt(s.Target, 10, 64); err == nil {
		uid = []byte(s.Target)
	}

	return json.Marshal(liveStatusJSON{
		UID:        uid,
		Title:      s.Title,
		RoomID:     s.RoomID,
		LiveTime:   s.LiveTime,
		LiveStatus: state,
		AreaName:   s.AreaName,
		Uname:      s.StreamerName,
		Face:       s.AvatarURL,
		Cover:      s.CoverURL,
		Keyframe:   s.KeyframeURL,
		AsOf:       s.AsOf,
	})
}

func (s *LiveStatus) UnmarshalJSON(data []byte) error {
	var raw liveStatusJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	target, err := decodeUID(raw.UID)
	if err != nil {
		return err
	}

	*s = LiveStatus{
		Target:       target,
		Title:        raw.Title,
		IsLive:       raw.LiveStatus == LiveStateLive,
		LiveState:    raw.LiveStatus,
		RoomID:       raw.RoomID,
		StreamerName: raw.Uname,
		AvatarURL:    raw.Face,
		CoverURL:     firstNonEmpty(raw.Cover, raw.CoverFromUser),
		KeyframeURL:  raw.Keyframe,
		AreaName:     firstNonEmpty(raw.AreaName, raw.AreaV2Name),
		LiveTime:     raw.LiveTime,
		AsOf:         raw.AsOf,
	}
	return nil
}

func decodeUID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var uid string
		if err := json.Unmarshal(raw, &uid); err != nil {
			return "", fmt.Errorf("decode uid: %w", err)
		}
		return uid, nil
	}
	var uid json.Number
	if err := json.Unmarshal(raw, &uid); err != nil {
		return "", fmt.Errorf("decode uid: %w", err)
	}
	return uid.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
